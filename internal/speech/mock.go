package speech

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/voxbridge/callcore/internal/callerr"
)

// Mock is the deterministic adapter required by §4.A for tests: its
// transforms are pure functions of their inputs, so replaying the same
// utterance twice yields byte-identical results without ever reaching
// a real provider.
type Mock struct {
	// RecognizeFn derives a transcript from the number of frames fed and
	// the requested language. Defaults to FrameCountTranscript.
	RecognizeFn func(frameCount int, language string) string

	// TranslateFn derives translated text deterministically. Defaults to
	// TaggedTranslation.
	TranslateFn func(text, sourceLang, targetLang string) string

	// SynthesizeFn derives PCM bytes deterministically from text.
	// Defaults to ToneFromText.
	SynthesizeFn func(text, targetLang, voiceID string) []byte

	// FailRecognize, FailTranslate, FailSynthesize simulate provider
	// outages for failure-path tests.
	FailRecognize  bool
	FailTranslate  bool
	FailSynthesize bool
}

// NewMock returns a Mock with its default deterministic transforms.
func NewMock() *Mock {
	return &Mock{
		RecognizeFn:  FrameCountTranscript,
		TranslateFn:  TaggedTranslation,
		SynthesizeFn: ToneFromText,
	}
}

// FrameCountTranscript is the default RecognizeFn: it reports how many
// frames were fed, so tests can assert on utterance boundaries without
// needing real audio content.
func FrameCountTranscript(frameCount int, language string) string {
	if frameCount == 0 {
		return ""
	}
	return fmt.Sprintf("utterance of %d frames (%s)", frameCount, language)
}

// TaggedTranslation is the default TranslateFn: a deterministic,
// reversible tag of the source text rather than a real translation.
func TaggedTranslation(text, sourceLang, targetLang string) string {
	if sourceLang == targetLang {
		return text
	}
	return fmt.Sprintf("[%s->%s] %s", sourceLang, targetLang, text)
}

// ToneFromText is the default SynthesizeFn: deterministic PCM whose
// length and content depend only on the target language, voice id and
// text, so cache-hit tests can compare audio payloads by content.
func ToneFromText(text, targetLang, voiceID string) []byte {
	sum := sha256.Sum256([]byte(targetLang + "|" + voiceID + "|" + text))
	sampleCount := 160 + int(sum[0])*8 // between 160 and 2200 samples
	out := make([]byte, sampleCount*2)
	for i := 0; i < sampleCount; i++ {
		v := int16(binary.LittleEndian.Uint16(sum[(i%30):(i%30)+2])) / 4
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Recognize streams one interim per frame received, then a single
// final result once the audio channel closes.
func (m *Mock) Recognize(ctx context.Context, audio <-chan []byte, language string) (<-chan RecognitionResult, error) {
	if m.FailRecognize {
		return nil, callerr.New(callerr.KindRecognitionUnavailable, "mock: recognition disabled")
	}

	fn := m.RecognizeFn
	if fn == nil {
		fn = FrameCountTranscript
	}

	out := make(chan RecognitionResult, 8)
	go func() {
		defer close(out)
		count := 0
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-audio:
				if !ok {
					final := RecognitionResult{Text: fn(count, language), IsFinal: true, Confidence: 1}
					select {
					case out <- final:
					case <-ctx.Done():
					}
					return
				}
				if len(frame) == 0 {
					continue
				}
				count++
				partial := RecognitionResult{
					Text:       fmt.Sprintf("%s...", fn(count, language)),
					IsFinal:    false,
					Confidence: 0.5,
				}
				select {
				case out <- partial:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Translate applies TranslateFn.
func (m *Mock) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if m.FailTranslate {
		return "", callerr.New(callerr.KindTranslationUnavailable, "mock: translation disabled")
	}
	fn := m.TranslateFn
	if fn == nil {
		fn = TaggedTranslation
	}
	return fn(text, sourceLang, targetLang), nil
}

// Synthesize applies SynthesizeFn.
func (m *Mock) Synthesize(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
	if m.FailSynthesize {
		return nil, callerr.New(callerr.KindSynthesisUnavailable, "mock: synthesis disabled")
	}
	fn := m.SynthesizeFn
	if fn == nil {
		fn = ToneFromText
	}
	return fn(text, targetLang, voiceID), nil
}

var _ Adapter = (*Mock)(nil)
