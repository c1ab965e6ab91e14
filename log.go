package resilient

import (
	"time"

	"go.uber.org/zap"
)

// LogHooks returns Hooks that report retry events to logger: every retry at
// warn level, exhaustion at error level and hard timeouts at error level.
// Fields already attached to logger (method, url, ...) are kept.
func LogHooks(logger *zap.Logger) Hooks {
	if logger == nil {
		return Hooks{}
	}

	return Hooks{
		OnRetry: func(ev RetryEvent) {
			logger.Warn("retrying after failure",
				zap.String("layer", string(ev.Layer)),
				zap.Int("attempt", ev.Attempt),
				zap.Duration("delay", ev.Delay),
				zap.Error(ev.Err),
			)
		},
		OnExhausted: func(ev ExhaustedEvent) {
			logger.Error("retry budget exhausted",
				zap.String("layer", string(ev.Layer)),
				zap.Int("attempts", ev.Attempts),
				zap.Error(ev.Err),
			)
		},
		OnTimeout: func(elapsed time.Duration) {
			logger.Error("call timed out", zap.Duration("elapsed", elapsed))
		},
	}
}
