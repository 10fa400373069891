package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environments recognised by recipient routing.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like QUEUE_MAX_RETRIES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = EnvDevelopment
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if env := os.Getenv("APP_ENVIRONMENT"); env != "" {
		cfg.App.Environment = env
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or any parent up to the module root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("Loaded .env from: %s\n", path)
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}

	if cfg.Integrations.Interakt.APIKey == "" {
		if val := os.Getenv("INTERAKT_API_KEY"); val != "" {
			cfg.Integrations.Interakt.APIKey = val
		}
	}

	if cfg.Notifications.Developer.Email == "" {
		if val := os.Getenv("DEVELOPER_EMAIL"); val != "" {
			cfg.Notifications.Developer.Email = val
		}
	}
	if cfg.Notifications.Developer.Phone == "" {
		if val := os.Getenv("DEVELOPER_PHONE"); val != "" {
			cfg.Notifications.Developer.Phone = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "academic360-notifications"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = EnvDevelopment
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 5
	}
	if cfg.Queue.StaleAfterSeconds == 0 {
		cfg.Queue.StaleAfterSeconds = 300
	}
	if cfg.Queue.SweepSchedule == "" {
		cfg.Queue.SweepSchedule = "@every 1m"
	}

	if cfg.Template.RegistryPath == "" {
		cfg.Template.RegistryPath = "configs/email-templates.json"
	}

	if cfg.Integrations.Email.Provider == "" {
		cfg.Integrations.Email.Provider = "ses"
	}
	if cfg.Integrations.Interakt.BaseURL == "" {
		cfg.Integrations.Interakt.BaseURL = "https://api.interakt.ai"
	}
	if cfg.Integrations.Interakt.CountryCode == "" {
		cfg.Integrations.Interakt.CountryCode = "+91"
	}
	if cfg.Integrations.Interakt.LanguageCode == "" {
		cfg.Integrations.Interakt.LanguageCode = "en"
	}
	if cfg.Integrations.Interakt.Timeout == 0 {
		cfg.Integrations.Interakt.Timeout = 15000
	}
	if cfg.Integrations.Kafka.ClientID == "" {
		cfg.Integrations.Kafka.ClientID = "academic360-notifications"
	}

	if cfg.Notifications.StagingRecipientLimit == 0 {
		cfg.Notifications.StagingRecipientLimit = 500
	}
	if cfg.Notifications.Events.Topic == "" {
		cfg.Notifications.Events.Topic = "notification.outcomes"
	}
	if cfg.Notifications.Audit.Index == "" {
		cfg.Notifications.Audit.Index = "notification-dead-letters"
	}
	if cfg.Notifications.AlertCacheTTL == 0 {
		cfg.Notifications.AlertCacheTTL = 600
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		cfg.Workers[key] = withWorkerDefaults(key, worker)
	}
}

func withWorkerDefaults(name string, worker WorkerConfig) WorkerConfig {
	if worker.Instances == 0 {
		worker.Instances = 1
	}
	if worker.BatchSize == 0 {
		worker.BatchSize = 50
	}
	if worker.PollInterval == 0 {
		worker.PollInterval = 3000
	}
	if worker.RateDelay == 0 {
		worker.RateDelay = 250
		if name == "whatsapp-send" {
			worker.RateDelay = 300
		}
	}
	if worker.AttemptTimeout == 0 {
		worker.AttemptTimeout = 5000
	}
	return worker
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("app.environment must be one of development, staging, production; got %q", cfg.App.Environment)
	}

	if cfg.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.max_retries must be at least 1")
	}
	if err := validateClaimBudget(cfg); err != nil {
		return err
	}

	switch cfg.Integrations.Email.Provider {
	case "ses", "smtp":
	default:
		return fmt.Errorf("integrations.email.provider must be ses or smtp")
	}

	if cfg.Notifications.Audit.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when notifications.audit is enabled")
	}
	if cfg.Notifications.Events.Enabled && len(cfg.Integrations.Kafka.Brokers) == 0 {
		return fmt.Errorf("integrations.kafka.brokers is required when notifications.events is enabled")
	}

	return nil
}

// validateClaimBudget rejects worker settings under which the last row of a
// claimed batch could still be waiting when the staleness sweep requeues it.
func validateClaimBudget(cfg *Config) error {
	staleMs := cfg.Queue.StaleAfterSeconds * 1000
	names := make([]string, 0, len(cfg.Workers))
	for name := range cfg.Workers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := cfg.Workers[name]
		if !w.Enabled {
			continue
		}
		budget := w.BatchSize * (w.AttemptTimeout + w.RateDelay)
		if budget >= staleMs {
			return fmt.Errorf("workers.%s: batch_size*(attempt_timeout+rate_delay) = %dms must be below queue.stale_after_seconds (%dms)",
				name, budget, staleMs)
		}
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return withWorkerDefaults(workerName, WorkerConfig{Enabled: true})
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
