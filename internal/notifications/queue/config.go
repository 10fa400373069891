package queue

import (
	"time"

	"academic360-notifications/internal/common/config"
)

// MaxReasonLength bounds failed_reason values written by the store.
const MaxReasonLength = 500

// Config holds the queue state machine settings.
type Config struct {
	MaxRetries int
	StaleAfter time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		StaleAfter: 300 * time.Second,
	}
}

// ConfigFromApp extracts the queue settings from the application config.
func ConfigFromApp(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	if cfg.Queue.MaxRetries > 0 {
		out.MaxRetries = cfg.Queue.MaxRetries
	}
	if cfg.Queue.StaleAfterSeconds > 0 {
		out.StaleAfter = time.Duration(cfg.Queue.StaleAfterSeconds) * time.Second
	}
	return out
}
