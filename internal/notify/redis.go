package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// publisher is the part of the redis client the sink uses
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes events as JSON on a redis pub/sub channel
type RedisSink struct {
	client  publisher
	closer  func() error
	channel string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRedisSink connects to the redis server at addr
func NewRedisSink(addr, channel string, logger zerolog.Logger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	s := newRedisSink(client, channel, logger)
	s.closer = client.Close
	return s
}

func newRedisSink(client publisher, channel string, logger zerolog.Logger) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channel,
		timeout: 3 * time.Second,
		logger:  logger.With().Str("module", "notify").Str("sink", "redis").Logger(),
	}
}

// Notify implements Sink
func (s *RedisSink) Notify(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(ev.Kind)).Msg("Failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Str("event", string(ev.Kind)).Str("channel", s.channel).Msg("Failed to publish event")
	}
}

// Close releases the redis connection
func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
