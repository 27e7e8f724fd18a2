package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fieldsurvey")
	}

	setDefaults(v)

	// FIELDSURVEY_STORE_URL overrides store.url, etc.
	v.SetEnvPrefix("FIELDSURVEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.register_per_minute", d.Server.RegisterPerMinute)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("store.timeout", d.Store.Timeout.String())

	v.SetDefault("counter.type", d.Counter.Type)
	v.SetDefault("counter.key", d.Counter.Key)

	v.SetDefault("queue.type", d.Queue.Type)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.subject_prefix", d.Events.SubjectPrefix)

	v.SetDefault("uploads.dir", d.Uploads.Dir)
	v.SetDefault("uploads.base_url", d.Uploads.BaseURL)
	v.SetDefault("uploads.max_size_mb", d.Uploads.MaxSizeMB)

	v.SetDefault("auth.enabled", d.Auth.Enabled)

	v.SetDefault("cache.survey_ttl", d.Cache.SurveyTTL.String())

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			HTTPPort:          5555,
			RegisterPerMinute: 30,
		},
		Store: StoreConfig{
			Driver:   "memory",
			Database: "fieldsurvey",
			Timeout:  10 * time.Second,
		},
		Counter: CounterConfig{
			Type: "store",
			Key:  "fieldsurvey:next_installation_id",
		},
		Queue: QueueConfig{
			Type: "memory",
		},
		Events: EventsConfig{
			Enabled:       false,
			SubjectPrefix: "fieldsurvey",
		},
		Uploads: UploadsConfig{
			Dir:       "./data/uploads",
			BaseURL:   "http://localhost:5555/v1/uploads",
			MaxSizeMB: utils.DefaultUploadMaxSizeMB,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		Cache: CacheConfig{
			SurveyTTL: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}
