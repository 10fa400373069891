package requeuestale

import (
	"time"

	"academic360-notifications/internal/common/config"
)

type Config struct {
	Schedule string
	Timeout  time.Duration
}

func NewConfig(cfg *config.Config) *Config {
	c := &Config{Schedule: cfg.Queue.SweepSchedule, Timeout: 30 * time.Second}
	if c.Schedule == "" {
		c.Schedule = "@every 1m"
	}
	return c
}
