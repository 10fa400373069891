package smssend

import (
	"time"

	"academic360-notifications/internal/common/config"
)

type Config struct {
	SenderID  string
	RateDelay time.Duration
	MaxLength int
}

func NewConfig(cfg *config.Config) *Config {
	return &Config{
		SenderID:  cfg.Integrations.AWS.SNS.DefaultSMSSenderID,
		RateDelay: config.GetDuration(config.GetWorkerConfig(cfg, TaskType).RateDelay),
		MaxLength: 1600,
	}
}
