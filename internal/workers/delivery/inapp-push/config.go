package inapppush

import "time"

type Config struct {
	ChannelPrefix string
	Timeout       time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		ChannelPrefix: "notifications:user:",
		Timeout:       5 * time.Second,
	}
}
