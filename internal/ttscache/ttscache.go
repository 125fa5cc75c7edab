// Package ttscache implements the bounded LRU of synthesized audio
// (§4.B): keyed by (text, target language, voice id), with at-most-one
// concurrent synthesis per key and no negative caching.
package ttscache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/voxbridge/callcore/internal/cache"
	"github.com/voxbridge/callcore/internal/store/redis"
)

// SynthesizeFunc performs the actual (possibly slow, possibly failing)
// synthesis call. Implementations are expected to call a speech.Synthesizer.
type SynthesizeFunc func(ctx context.Context, text, targetLang, voiceID string) ([]byte, error)

// Cache wraps an LRU of synthesized PCM with single-flight coordination
// so concurrent requests for the same key await one provider call
// instead of issuing duplicates. An optional Redis tier lets every
// orchestrator process in a cluster reuse audio synthesized by any other
// process for the same (text, target language, voice id).
type Cache struct {
	lru    *cache.LRU
	group  singleflight.Group
	ttl    time.Duration
	redis  *redis.Client
	logger zerolog.Logger
}

// New creates a TTS cache with the given capacity and entry TTL, backed
// only by the local LRU.
func New(maxEntries int, ttl time.Duration, logger zerolog.Logger) *Cache {
	return newCache(maxEntries, ttl, nil, logger)
}

// NewWithRedis creates a TTS cache whose local LRU is backed by a shared
// Redis tier, so a cache miss in one orchestrator process can still be
// satisfied by audio another process already synthesized.
func NewWithRedis(maxEntries int, ttl time.Duration, rdb *redis.Client, logger zerolog.Logger) *Cache {
	return newCache(maxEntries, ttl, rdb, logger)
}

func newCache(maxEntries int, ttl time.Duration, rdb *redis.Client, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		lru:    cache.NewLRU(maxEntries),
		ttl:    ttl,
		redis:  rdb,
		logger: logger.With().Str("component", "ttscache").Logger(),
	}
}

// GetOrSynthesize returns cached PCM for (text, targetLang, voiceID) if
// present; otherwise it calls synth exactly once even under concurrent
// callers for the same key, and does not cache the result on failure
// (negative caching is prohibited by §4.B so a transient provider
// outage is retried on the very next request).
func (c *Cache) GetOrSynthesize(ctx context.Context, text, targetLang, voiceID string, synth SynthesizeFunc) ([]byte, error) {
	key := buildKey(text, targetLang, voiceID)

	if val, ok := c.lru.Get(key); ok {
		return val.([]byte), nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the single-flight key: another caller may have
		// populated the cache between our Get miss and entering Do.
		if val, ok := c.lru.Get(key); ok {
			return val.([]byte), nil
		}

		if c.redis != nil {
			if pcm, ok := c.getFromRedis(ctx, key); ok {
				c.lru.Set(key, pcm, c.ttl)
				return pcm, nil
			}
		}

		pcm, err := synth(ctx, text, targetLang, voiceID)
		if err != nil {
			return nil, err
		}

		c.lru.Set(key, pcm, c.ttl)
		if c.redis != nil {
			c.setInRedis(ctx, key, pcm)
		}
		return pcm, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) getFromRedis(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.redis.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	return []byte(val), true
}

func (c *Cache) setInRedis(ctx context.Context, key string, pcm []byte) {
	if err := c.redis.Set(ctx, key, pcm, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to populate redis tts cache tier")
	}
}

// buildKey generates the cache key: tts:{targetLang}:{voiceID}:{sha256(text)}
func buildKey(text, targetLang, voiceID string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("tts:%s:%s:%x", targetLang, voiceID, hash)
}
