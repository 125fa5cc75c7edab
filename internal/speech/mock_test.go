package speech

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRecognizeEmitsFinalOnClose(t *testing.T) {
	m := NewMock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frames := make(chan []byte, 4)
	out, err := m.Recognize(ctx, frames, "he")
	require.NoError(t, err)

	frames <- make([]byte, 10)
	frames <- make([]byte, 10)
	close(frames)

	var last RecognitionResult
	for r := range out {
		last = r
	}
	assert.True(t, last.IsFinal)
	assert.Equal(t, "utterance of 2 frames (he)", last.Text)
}

func TestMockRecognizeEmptyAudioYieldsEmptyTranscript(t *testing.T) {
	m := NewMock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frames := make(chan []byte)
	out, err := m.Recognize(ctx, frames, "en")
	require.NoError(t, err)
	close(frames)

	final := <-out
	assert.Equal(t, "", final.Text)
	assert.True(t, final.IsFinal)
}

func TestMockTranslatePassthroughSameLanguage(t *testing.T) {
	m := NewMock()
	text, err := m.Translate(context.Background(), "shalom", "he", "he")
	require.NoError(t, err)
	assert.Equal(t, "shalom", text)
}

func TestMockTranslateDeterministic(t *testing.T) {
	m := NewMock()
	a, err := m.Translate(context.Background(), "hello", "en", "ru")
	require.NoError(t, err)
	b, err := m.Translate(context.Background(), "hello", "en", "ru")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMockSynthesizeDeterministic(t *testing.T) {
	m := NewMock()
	a, err := m.Synthesize(context.Background(), "hello", "ru", "voice-1")
	require.NoError(t, err)
	b, err := m.Synthesize(context.Background(), "hello", "ru", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestMockFailureModes(t *testing.T) {
	m := NewMock()
	m.FailRecognize = true
	m.FailTranslate = true
	m.FailSynthesize = true

	_, err := m.Recognize(context.Background(), make(chan []byte), "en")
	assert.Error(t, err)

	_, err = m.Translate(context.Background(), "x", "en", "ru")
	assert.Error(t, err)

	_, err = m.Synthesize(context.Background(), "x", "ru", "")
	assert.Error(t, err)
}
