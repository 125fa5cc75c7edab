package speech

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/config"
)

// Composite assembles a Recognizer, Translator, and Synthesizer into a
// single Adapter. Each leg's own client enforces its default wall-clock
// timeout (STT finalization 10s, translate 3s, synthesize 5s) so a
// stalled provider can't block a session forever.
type Composite struct {
	recognizer  Recognizer
	translator  Translator
	synthesizer Synthesizer
}

// NewComposite assembles a full Adapter from its three legs.
func NewComposite(recognizer Recognizer, translator Translator, synthesizer Synthesizer) *Composite {
	return &Composite{recognizer: recognizer, translator: translator, synthesizer: synthesizer}
}

func (c *Composite) Recognize(ctx context.Context, audio <-chan []byte, language string) (<-chan RecognitionResult, error) {
	return c.recognizer.Recognize(ctx, audio, language)
}

func (c *Composite) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return c.translator.Translate(ctx, text, sourceLang, targetLang)
}

func (c *Composite) Synthesize(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
	return c.synthesizer.Synthesize(ctx, text, targetLang, voiceID)
}

var _ Adapter = (*Composite)(nil)

// NewFromConfig wires the adapter stack from process configuration:
// the deterministic Mock when UseMockAdapter is set (development and
// tests), or the HTTP STT/TTS clients plus the circuit-breaking MT
// client otherwise.
func NewFromConfig(cfg config.SpeechConfig, logger zerolog.Logger) Adapter {
	if cfg.UseMockAdapter {
		return NewMock()
	}

	stt := NewHTTPSTT(HTTPSTTConfig{
		APIURL:  cfg.STTURL,
		APIKey:  cfg.STTAPIKey,
		Model:   cfg.STTModel,
		Timeout: cfg.STTTimeout,
	}, logger)

	mt := NewCircuitMT(CircuitMTConfig{
		URL:              cfg.MTURL,
		APIKey:           cfg.MTAPIKey,
		Timeout:          cfg.MTTimeout,
		CircuitBreaker:   cfg.CircuitBreaker,
		FailureThreshold: cfg.FailureThreshold,
		MaxLatency:       cfg.MaxLatency,
	}, logger)

	tts := NewHTTPTTS(HTTPTTSConfig{
		APIURL:       cfg.TTSURL,
		APIKey:       cfg.TTSAPIKey,
		DefaultVoice: cfg.DefaultVoice,
		Timeout:      cfg.TTSTimeout,
	}, logger)

	return NewComposite(stt, mt, tts)
}
