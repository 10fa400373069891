package emailsend

import (
	"fmt"
	"time"

	"academic360-notifications/internal/common/config"
)

const (
	ProviderSES  = "ses"
	ProviderSMTP = "smtp"
)

type Config struct {
	Provider     string
	FromEmail    string
	RateDelay    time.Duration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	UseTLS       bool
}

// NewConfig derives the handler settings from the application config.
func NewConfig(cfg *config.Config) *Config {
	c := &Config{
		Provider:  cfg.Integrations.Email.Provider,
		FromEmail: cfg.Integrations.AWS.SES.FromEmail,
		RateDelay: config.GetDuration(config.GetWorkerConfig(cfg, TaskType).RateDelay),
	}

	smtp := cfg.Integrations.SMTP
	c.SMTPHost = smtp.Host
	c.SMTPPort = smtp.Port
	c.SMTPUsername = smtp.Username
	c.SMTPPassword = smtp.Password
	c.UseTLS = smtp.UseTLS
	if c.Provider == ProviderSMTP && smtp.DefaultFrom != "" {
		c.FromEmail = smtp.DefaultFrom
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	return c
}

func (c *Config) Validate() error {
	if c.FromEmail == "" {
		return fmt.Errorf("sender address is required")
	}
	switch c.Provider {
	case ProviderSES:
	case ProviderSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("smtp host is required")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fmt.Errorf("smtp port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("unknown email provider %q", c.Provider)
	}
	return nil
}
