package ttscache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrSynthesizeCachesResult(t *testing.T) {
	c := New(16, time.Minute, zerolog.Nop())
	var calls int32

	synth := func(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("pcm-" + text), nil
	}

	pcm, err := c.GetOrSynthesize(context.Background(), "hello", "ru", "voice-1", synth)
	require.NoError(t, err)
	assert.Equal(t, []byte("pcm-hello"), pcm)

	pcm, err = c.GetOrSynthesize(context.Background(), "hello", "ru", "voice-1", synth)
	require.NoError(t, err)
	assert.Equal(t, []byte("pcm-hello"), pcm)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrSynthesizeDistinguishesKeys(t *testing.T) {
	c := New(16, time.Minute, zerolog.Nop())
	synth := func(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
		return []byte(text + ":" + targetLang + ":" + voiceID), nil
	}

	en, err := c.GetOrSynthesize(context.Background(), "hi", "en", "voice-1", synth)
	require.NoError(t, err)
	ru, err := c.GetOrSynthesize(context.Background(), "hi", "ru", "voice-1", synth)
	require.NoError(t, err)

	assert.NotEqual(t, en, ru)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrSynthesizeDeduplicatesConcurrentCallers(t *testing.T) {
	c := New(16, time.Minute, zerolog.Nop())
	var calls int32
	release := make(chan struct{})

	synth := func(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("pcm"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrSynthesize(context.Background(), "hi", "en", "voice-1", synth)
			assert.NoError(t, err)
		}()
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrSynthesizeDoesNotCacheFailures(t *testing.T) {
	c := New(16, time.Minute, zerolog.Nop())
	var calls int32
	synth := func(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return nil, assert.AnError
		}
		return []byte("pcm"), nil
	}

	_, err := c.GetOrSynthesize(context.Background(), "hi", "en", "voice-1", synth)
	require.Error(t, err)

	pcm, err := c.GetOrSynthesize(context.Background(), "hi", "en", "voice-1", synth)
	require.NoError(t, err)
	assert.Equal(t, []byte("pcm"), pcm)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
