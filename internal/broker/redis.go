package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/pkg/protocol"
)

// Redis is a Broker backed by Redis Pub/Sub, letting any number of
// orchestrator processes share delivery for the same call session.
type Redis struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewRedis dials Redis and pings it, mirroring the connection setup the
// rest of this codebase uses for its Redis-backed cache tier.
func NewRedis(cfg config.RedisConfig, logger zerolog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("broker: failed to ping redis: %w", err)
	}

	return &Redis{
		rdb:    rdb,
		logger: logger.With().Str("component", "broker_redis").Logger(),
	}, nil
}

func topicName(sessionID string) string {
	return "callcore:session:" + sessionID
}

func (b *Redis) Publish(ctx context.Context, sessionID string, msgType protocol.MessageType, v interface{}) error {
	data, err := protocol.Encode(msgType, v)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, topicName(sessionID), data).Err(); err != nil {
		return fmt.Errorf("broker: publish to session %s: %w", sessionID, err)
	}
	return nil
}

func (b *Redis) Subscribe(ctx context.Context, sessionID string) (<-chan Message, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, topicName(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("broker: subscribe to session %s: %w", sessionID, err)
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		raw := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-raw:
				if !ok {
					return
				}
				env, err := protocol.DecodeBytes([]byte(m.Payload))
				if err != nil {
					b.logger.Warn().Err(err).Str("session_id", sessionID).Msg("dropping malformed broker message")
					continue
				}
				select {
				case out <- Message{SessionID: sessionID, Envelope: env}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	unsubscribe := func() {
		_ = pubsub.Close()
	}
	return out, unsubscribe, nil
}

// Ping verifies the Redis connection is reachable, for health checks.
func (b *Redis) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (b *Redis) Close() error {
	return b.rdb.Close()
}

var _ Broker = (*Redis)(nil)
var _ Broker = (*InProcess)(nil)
