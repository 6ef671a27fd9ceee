package notify

import (
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
)

// Build assembles the configured sinks behind one buffered sink.
// The returned close function flushes and releases every sink.
func Build(cfg config.NotifyConfig, logger zerolog.Logger) (Sink, func(), error) {
	sinks := Multi{NewLogSink(logger)}
	var closers []func()

	if cfg.RedisAddr != "" {
		rs := NewRedisSink(cfg.RedisAddr, cfg.RedisChannel, logger)
		sinks = append(sinks, rs)
		closers = append(closers, func() {
			if err := rs.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close redis sink")
			}
		})
	}

	if cfg.SentryDSN != "" {
		ss, err := NewSentrySink(cfg.SentryDSN, logger)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		sinks = append(sinks, ss)
		closers = append(closers, ss.Close)
	}

	async := NewAsync(sinks, cfg.Buffer, logger)
	return async, func() {
		async.Close()
		for _, c := range closers {
			c()
		}
	}, nil
}
