package whatsappsend

import (
	"fmt"
	"strings"
	"time"

	"academic360-notifications/internal/common/config"
)

// DefaultTemplate is sent when the notification has no linked alert.
const DefaultTemplate = "generic_alert"

type Config struct {
	BaseURL      string
	APIKey       string
	CountryCode  string
	LanguageCode string
	Timeout      time.Duration
	RateDelay    time.Duration
}

func NewConfig(cfg *config.Config) *Config {
	ik := cfg.Integrations.Interakt
	return &Config{
		BaseURL:      strings.TrimRight(ik.BaseURL, "/"),
		APIKey:       ik.APIKey,
		CountryCode:  ik.CountryCode,
		LanguageCode: ik.LanguageCode,
		Timeout:      config.GetDuration(ik.Timeout),
		RateDelay:    config.GetDuration(config.GetWorkerConfig(cfg, TaskType).RateDelay),
	}
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("interakt base url is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("interakt api key is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func (c *Config) messageURL() string {
	return c.BaseURL + "/v1/public/message/"
}
