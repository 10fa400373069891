package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Queue         QueueConfig             `mapstructure:"queue"`
	Template      TemplateConfig          `mapstructure:"template"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds the HTTP listener for the producer, operator and ops endpoints.
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// RedisConfig configures the client shared by the alert cache and in-app
// publishing.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	MinIdle  int    `mapstructure:"min_idle"`
}

// QueueConfig holds the notification queue state machine settings.
type QueueConfig struct {
	MaxRetries        int    `mapstructure:"max_retries"`
	StaleAfterSeconds int    `mapstructure:"stale_after_seconds"`
	SweepSchedule     string `mapstructure:"sweep_schedule"`
}

// WorkerConfig holds the settings applicable to every delivery worker.
type WorkerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	Instances      int  `mapstructure:"instances"`
	BatchSize      int  `mapstructure:"batch_size"`
	PollInterval   int  `mapstructure:"poll_interval"`   // milliseconds
	RateDelay      int  `mapstructure:"rate_delay"`      // milliseconds
	AttemptTimeout int  `mapstructure:"attempt_timeout"` // milliseconds
}

// IntegrationConfig holds settings for the delivery providers.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	Email struct {
		Provider string `mapstructure:"provider"` // ses | smtp
	} `mapstructure:"email"`

	SMTP struct {
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		UseTLS      bool   `mapstructure:"use_tls"`
		DefaultFrom string `mapstructure:"default_from"`
	} `mapstructure:"smtp"`

	Interakt struct {
		BaseURL      string `mapstructure:"base_url"`
		APIKey       string `mapstructure:"api_key"`
		CountryCode  string `mapstructure:"country_code"`
		LanguageCode string `mapstructure:"language_code"`
		Timeout      int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"interakt"`

	Kafka struct {
		Brokers  []string `mapstructure:"brokers"`
		ClientID string   `mapstructure:"client_id"`
	} `mapstructure:"kafka"`
}

// NotificationConfig holds routing and outcome listener settings.
type NotificationConfig struct {
	Developer struct {
		Email string `mapstructure:"email"`
		Phone string `mapstructure:"phone"`
	} `mapstructure:"developer"`

	StagingRecipientLimit int `mapstructure:"staging_recipient_limit"`

	Events struct {
		Enabled bool   `mapstructure:"enabled"`
		Topic   string `mapstructure:"topic"`
	} `mapstructure:"events"`

	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"audit"`

	AlertCacheTTL int `mapstructure:"alert_cache_ttl"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TemplateConfig holds the email template registry location.
type TemplateConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
}
