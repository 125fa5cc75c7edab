// Package router implements the per-utterance translation and delivery
// fan-out of §4.D: one finalized (or interim) utterance from a speaker
// is translated once per distinct listener language, synthesized once
// per (text, language, voice) through the shared TTS cache, and handed
// back as a per-listener delivery list.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/cache"
	"github.com/voxbridge/callcore/internal/callerr"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/security"
	"github.com/voxbridge/callcore/internal/speech"
	"github.com/voxbridge/callcore/internal/ttscache"
)

// Utterance is one piece of speech from one participant, either an
// interim partial or a finalized transcript.
type Utterance struct {
	SessionID  string
	Speaker    string
	SourceLang string
	Text       string
	Interim    bool
	StartMS    int64
	EndMS      int64
}

// ListenerTarget describes one non-speaker participant who should
// receive a translation of an utterance.
type ListenerTarget struct {
	ListenerID string
	Language   string
	VoiceID    string
}

// DeliveryKind distinguishes interim captions from finalized,
// synthesized deliveries.
type DeliveryKind string

const (
	DeliveryInterim DeliveryKind = "interim_translation"
	DeliveryFinal   DeliveryKind = "final_translation"
)

// Delivery is the per-listener output of routing one utterance.
type Delivery struct {
	Kind           DeliveryKind
	Speaker        string
	Listener       string
	Seq            uint64
	SourceLang     string
	SourceText     string
	TargetLang     string
	TranslatedText string
	Audio          []byte
	// Degraded is set when translation or synthesis failed and the
	// listener is receiving a fallback (original-language or text-only)
	// delivery instead of a fully translated, synthesized one.
	Degraded bool
	StartMS  int64
	EndMS    int64
}

// ContextMessage is one entry of a session's rolling transcript.
type ContextMessage struct {
	Speaker string
	Text    string
}

type sessionContext struct {
	mu       sync.Mutex
	messages []ContextMessage
}

// Router assigns per-speaker sequence numbers, translates and
// synthesizes utterances for every connected listener, and deduplicates
// retried deliveries.
type Router struct {
	cfg         config.RouterConfig
	translator  speech.Translator
	synthesizer speech.Synthesizer
	ttsCache    *ttscache.Cache
	sanitizer   *security.Sanitizer
	logger      zerolog.Logger

	dedup *cache.LRU

	seqMu  sync.Mutex
	seqNum map[string]uint64

	ctxMu    sync.Mutex
	contexts map[string]*sessionContext
}

// New builds a Router. adapter supplies both the Translator and
// Synthesizer legs (a speech.Adapter satisfies both).
func New(cfg config.RouterConfig, adapter speech.Adapter, ttsCache *ttscache.Cache, logger zerolog.Logger) *Router {
	return &Router{
		cfg:         cfg,
		translator:  adapter,
		synthesizer: adapter,
		ttsCache:    ttsCache,
		sanitizer:   security.NewSanitizer(),
		logger:      logger.With().Str("component", "router").Logger(),
		dedup:       cache.NewLRU(4096),
		seqNum:      make(map[string]uint64),
		contexts:    make(map[string]*sessionContext),
	}
}

// Route translates and synthesizes u for every listener target,
// returning one Delivery per listener. Finalized utterances are
// assigned a monotonic per-(session,speaker) sequence number and
// deduplicated; interim utterances are neither sequenced nor
// deduplicated nor cached, and never carry synthesized audio — they
// exist purely for low-latency captioning.
func (r *Router) Route(ctx context.Context, u Utterance, listeners []ListenerTarget) []Delivery {
	if u.Interim {
		return r.routeInterim(ctx, u, listeners)
	}
	return r.routeFinal(ctx, u, listeners)
}

func (r *Router) routeInterim(ctx context.Context, u Utterance, listeners []ListenerTarget) []Delivery {
	if !r.cfg.InterimTranslationEnabled {
		return nil
	}

	translated := make(map[string]translationResult)
	deliveries := make([]Delivery, 0, len(listeners))

	for _, l := range listeners {
		tr := r.translateOnce(ctx, translated, u.Text, u.SourceLang, l.Language)
		deliveries = append(deliveries, Delivery{
			Kind:           DeliveryInterim,
			Speaker:        u.Speaker,
			Listener:       l.ListenerID,
			SourceLang:     u.SourceLang,
			SourceText:     r.sanitizer.SanitizeTranscript(u.Text),
			TargetLang:     l.Language,
			TranslatedText: r.sanitizer.SanitizeTranscript(tr.text),
			Degraded:       tr.degraded,
			StartMS:        u.StartMS,
			EndMS:          u.EndMS,
		})
	}
	return deliveries
}

func (r *Router) routeFinal(ctx context.Context, u Utterance, listeners []ListenerTarget) []Delivery {
	seq := r.nextSeq(u.SessionID, u.Speaker)

	dedupKey := fmt.Sprintf("%s:%s:%d", u.SessionID, u.Speaker, seq)
	if _, dup := r.dedup.Get(dedupKey); dup {
		r.logger.Warn().Str("dedup_key", dedupKey).Msg("duplicate utterance dropped")
		return nil
	}
	ttl := r.cfg.DedupTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r.dedup.Set(dedupKey, true, ttl)

	r.recordContext(u.SessionID, u.Speaker, u.Text)

	translated := make(map[string]translationResult)
	deliveries := make([]Delivery, 0, len(listeners))

	for _, l := range listeners {
		tr := r.translateOnce(ctx, translated, u.Text, u.SourceLang, l.Language)

		d := Delivery{
			Kind:           DeliveryFinal,
			Speaker:        u.Speaker,
			Listener:       l.ListenerID,
			Seq:            seq,
			SourceLang:     u.SourceLang,
			SourceText:     r.sanitizer.SanitizeTranscript(u.Text),
			TargetLang:     l.Language,
			TranslatedText: r.sanitizer.SanitizeTranscript(tr.text),
			Degraded:       tr.degraded,
			StartMS:        u.StartMS,
			EndMS:          u.EndMS,
		}

		if !tr.degraded && !tr.passthrough {
			voice := l.VoiceID
			if voice == "" {
				voice = "default"
			}
			// Synthesis uses the raw translated text, not the
			// HTML-escaped caption text in d.TranslatedText.
			pcm, err := r.ttsCache.GetOrSynthesize(ctx, tr.text, l.Language, voice, func(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
				return r.synthesizer.Synthesize(ctx, text, targetLang, voiceID)
			})
			if err != nil {
				r.logger.Warn().Err(err).Str("listener_id", l.ListenerID).Msg("synthesis unavailable, delivering text only")
				d.Degraded = true
			} else {
				d.Audio = pcm
			}
		}

		deliveries = append(deliveries, d)
	}
	return deliveries
}

type translationResult struct {
	text        string
	degraded    bool
	passthrough bool
}

// translateOnce memoizes translation by target language within a
// single Route call, and implements the target==source passthrough.
// A passthrough result never reaches TTS: §4.D.3 requires same-language
// listeners to receive source text with no synthesized audio.
func (r *Router) translateOnce(ctx context.Context, memo map[string]translationResult, text, sourceLang, targetLang string) translationResult {
	if sourceLang == targetLang {
		return translationResult{text: text, passthrough: true}
	}
	if cached, ok := memo[targetLang]; ok {
		return cached
	}

	translated, err := r.translator.Translate(ctx, text, sourceLang, targetLang)
	result := translationResult{text: translated}
	if err != nil {
		r.logger.Warn().Err(err).Str("target_lang", targetLang).Msg("translation unavailable, degrading to source text")
		result = translationResult{text: text, degraded: true}
		if kind, ok := callerr.KindOf(err); ok && kind != callerr.KindTranslationUnavailable {
			r.logger.Error().Err(err).Str("kind", string(kind)).Msg("unexpected translation error kind")
		}
	}
	memo[targetLang] = result
	return result
}

func (r *Router) nextSeq(sessionID, speaker string) uint64 {
	key := sessionID + ":" + speaker
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.seqNum[key]++
	return r.seqNum[key]
}

func (r *Router) recordContext(sessionID, speaker, text string) {
	if r.cfg.ContextWindow <= 0 {
		return
	}

	r.ctxMu.Lock()
	sc, ok := r.contexts[sessionID]
	if !ok {
		sc = &sessionContext{}
		r.contexts[sessionID] = sc
	}
	r.ctxMu.Unlock()

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.messages = append(sc.messages, ContextMessage{Speaker: speaker, Text: text})
	if len(sc.messages) > r.cfg.ContextWindow {
		sc.messages = sc.messages[len(sc.messages)-r.cfg.ContextWindow:]
	}
}

// ContextFor returns a copy of the session's rolling transcript window.
func (r *Router) ContextFor(sessionID string) []ContextMessage {
	r.ctxMu.Lock()
	sc, ok := r.contexts[sessionID]
	r.ctxMu.Unlock()
	if !ok {
		return nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]ContextMessage, len(sc.messages))
	copy(out, sc.messages)
	return out
}

// EndSession releases a session's rolling context. Sequence counters
// are left in place since they are cheap and keyed by session id, so a
// stray late delivery after teardown still dedups correctly.
func (r *Router) EndSession(sessionID string) {
	r.ctxMu.Lock()
	delete(r.contexts, sessionID)
	r.ctxMu.Unlock()
}
