// Package segmenter implements the per-(session,speaker) voice-activity
// detector and utterance cutter of §4.C: it consumes a continuous
// stream of 100ms PCM frames and emits interim partials plus finalized
// utterances to the translation router.
package segmenter

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/audio"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/speech"
)

// state is the §4.C state machine: idle, speaking, trailing_silence.
// "finalizing" is not modeled as a resting state — it is the act of
// closing the current utterance's recognition stream and returning to
// idle within the same frame-processing step.
type state int

const (
	stateIdle state = iota
	stateSpeaking
	stateTrailingSilence
)

// EventKind distinguishes the three things a Segmenter emits.
type EventKind string

const (
	// EventInterim carries a non-final transcript fragment.
	EventInterim EventKind = "interim"
	// EventFinal carries a finalized, non-empty utterance.
	EventFinal EventKind = "final"
	// EventError carries a recognition failure for the speaker alone.
	EventError EventKind = "error"
)

// Event is published on the Segmenter's output channel.
type Event struct {
	Kind       EventKind
	Speaker    string
	Text       string
	SourceLang string
	StartMS    int64
	EndMS      int64
	Err        error
}

type controlKind int

const (
	ctrlMute controlKind = iota
	ctrlUnmute
)

type controlMsg struct{ kind controlKind }

// Segmenter runs the voice-activity state machine for one
// (session, speaker) pair.
type Segmenter struct {
	sessionID  string
	speakerID  string
	sourceLang string
	cfg        config.SegmenterConfig
	classifier *Classifier
	recognizer speech.Recognizer
	callStart  time.Time

	inbound chan []byte
	control chan controlMsg
	events  chan Event

	logger zerolog.Logger
}

// New creates a Segmenter for one speaker within one call session.
// callStart anchors the millisecond offsets reported on final events.
func New(sessionID, speakerID, sourceLang string, cfg config.SegmenterConfig, recognizer speech.Recognizer, callStart time.Time, logger zerolog.Logger) *Segmenter {
	return &Segmenter{
		sessionID:  sessionID,
		speakerID:  speakerID,
		sourceLang: sourceLang,
		cfg:        cfg,
		classifier: NewClassifier(ClassifierConfig{
			RMSThreshold:     cfg.RMSThreshold,
			WindowMS:         cfg.SpectralWindowMS,
			SpeechBandLowHz:  cfg.SpeechBandLowHz,
			SpeechBandHighHz: cfg.SpeechBandHighHz,
			NoiseBandHz:      cfg.NoiseBandHz,
			SpectralRatio:    cfg.SpectralRatio,
		}),
		recognizer: recognizer,
		callStart:  callStart,
		inbound:    make(chan []byte, cfg.InboundQueueSize),
		control:    make(chan controlMsg, 4),
		events:     make(chan Event, 32),
		logger: logger.With().
			Str("component", "segmenter").
			Str("session_id", sessionID).
			Str("speaker_id", speakerID).
			Logger(),
	}
}

// Events returns the channel of interim/final/error events. Closed
// when Run returns.
func (s *Segmenter) Events() <-chan Event {
	return s.events
}

// Push enqueues a raw PCM frame. Returns false if the inbound queue is
// saturated, in which case the frame is dropped and the caller should
// count it (§5 backpressure policy: newest frames are dropped).
func (s *Segmenter) Push(frame []byte) bool {
	select {
	case s.inbound <- frame:
		return true
	default:
		return false
	}
}

// Mute discards inbound frames and cancels any active utterance
// without publishing it (§4.C mute edge case).
func (s *Segmenter) Mute() {
	select {
	case s.control <- controlMsg{kind: ctrlMute}:
	default:
		s.logger.Warn().Msg("segmenter control channel full, mute delayed")
	}
}

// Unmute resumes normal frame processing from idle.
func (s *Segmenter) Unmute() {
	select {
	case s.control <- controlMsg{kind: ctrlUnmute}:
	default:
		s.logger.Warn().Msg("segmenter control channel full, unmute delayed")
	}
}

// Run drives the state machine until ctx is cancelled or the inbound
// queue is closed. A disconnect is modeled by cancelling ctx, which
// behaves like a permanent mute: any active utterance is discarded.
func (s *Segmenter) Run(ctx context.Context) {
	defer close(s.events)

	var (
		st           = stateIdle
		window       []int16
		audioCh      chan []byte
		utterCancel  context.CancelFunc
		speakStarted time.Time
		lastVoice    time.Time
		muted        bool
	)

	stopUtterance := func() {
		if utterCancel != nil {
			utterCancel()
		}
		audioCh = nil
		utterCancel = nil
		st = stateIdle
		window = window[:0]
	}

	defer func() {
		if utterCancel != nil {
			utterCancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-s.control:
			switch msg.kind {
			case ctrlMute:
				muted = true
				stopUtterance()
			case ctrlUnmute:
				muted = false
			}

		case frame, ok := <-s.inbound:
			if !ok {
				return
			}
			if muted {
				continue
			}

			samples := audio.DecodeInt16LE(frame)
			window = appendWindow(window, samples, s.classifier.WindowSamples())
			voice := s.classifier.Classify(window)
			now := time.Now()

			if st == stateIdle {
				if !voice {
					continue
				}
				st = stateSpeaking
				speakStarted = now
				lastVoice = now
				audioCh, utterCancel = s.startUtterance(ctx, speakStarted)
				if audioCh == nil {
					// Recognition unavailable: stay idle, drop this frame.
					st = stateIdle
					continue
				}
			}

			if audioCh != nil {
				select {
				case audioCh <- frame:
				default:
					s.logger.Debug().Msg("recognition stream backpressure, frame dropped from stream")
				}
			}

			switch st {
			case stateSpeaking:
				if voice {
					lastVoice = now
				} else {
					st = stateTrailingSilence
				}
			case stateTrailingSilence:
				if voice {
					st = stateSpeaking
					lastVoice = now
				}
			}

			elapsedMS := now.Sub(speakStarted).Milliseconds()
			silenceMS := now.Sub(lastVoice).Milliseconds()

			forcedMax := elapsedMS >= int64(s.cfg.MaxUtteranceMS)
			naturalEnd := st == stateTrailingSilence && silenceMS >= int64(s.cfg.SilenceThresholdMS)

			if forcedMax || naturalEnd {
				close(audioCh)
				audioCh = nil
				utterCancel = nil
				st = stateIdle
				window = window[:0]
			}
		}
	}
}

// startUtterance opens a new recognition stream for the speaker and
// spawns the goroutine that turns its results into Events.
func (s *Segmenter) startUtterance(parent context.Context, startedAt time.Time) (chan []byte, context.CancelFunc) {
	uctx, cancel := context.WithCancel(parent)

	audioCh := make(chan []byte, s.cfg.InboundQueueSize)
	resultsCh, err := s.recognizer.Recognize(uctx, audioCh, s.sourceLang)
	if err != nil {
		cancel()
		s.emit(Event{Kind: EventError, Speaker: s.speakerID, Err: err})
		return nil, nil
	}

	go s.collectResults(uctx, cancel, resultsCh, startedAt)
	return audioCh, cancel
}

// collectResults forwards interim partials as they arrive and, on the
// terminating final result, emits one EventFinal (or drops the
// utterance entirely if the final transcript is empty/whitespace). It
// owns cancel and releases the per-utterance context as soon as the
// recognition stream ends, whether by a final result, a closed results
// channel, or external cancellation — otherwise the child context stays
// registered on the call's parent context for the rest of the call.
func (s *Segmenter) collectResults(ctx context.Context, cancel context.CancelFunc, results <-chan speech.RecognitionResult, startedAt time.Time) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if !res.IsFinal {
				s.emit(Event{Kind: EventInterim, Speaker: s.speakerID, Text: res.Text, SourceLang: s.sourceLang})
				continue
			}

			text := strings.TrimSpace(res.Text)
			if text == "" {
				return
			}

			s.emit(Event{
				Kind:       EventFinal,
				Speaker:    s.speakerID,
				Text:       text,
				SourceLang: s.sourceLang,
				StartMS:    startedAt.Sub(s.callStart).Milliseconds(),
				EndMS:      time.Since(s.callStart).Milliseconds(),
			})
			return
		}
	}
}

func (s *Segmenter) emit(ev Event) {
	s.events <- ev
}

// appendWindow appends newly decoded samples to the sliding classifier
// window, keeping only the most recent maxLen samples.
func appendWindow(window []int16, frame []int16, maxLen int) []int16 {
	window = append(window, frame...)
	if len(window) > maxLen {
		window = window[len(window)-maxLen:]
	}
	if cap(window) > maxLen*4 {
		compact := make([]int16, len(window))
		copy(compact, window)
		window = compact
	}
	return window
}
