package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Counter CounterConfig `mapstructure:"counter"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Events  EventsConfig  `mapstructure:"events"`
	Uploads UploadsConfig `mapstructure:"uploads"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // HTTP server port
	// RegisterPerMinute caps installation registrations per client IP
	RegisterPerMinute int `mapstructure:"register_per_minute"`
}

// StoreConfig selects and configures the document store
type StoreConfig struct {
	Driver   string        `mapstructure:"driver"`   // memory, mongo, postgres, sqlite
	URL      string        `mapstructure:"url"`      // mongodb:// URI, postgres DSN or sqlite file path
	Database string        `mapstructure:"database"` // mongo database name
	Timeout  time.Duration `mapstructure:"timeout"`  // connect timeout
	Debug    bool          `mapstructure:"debug"`    // log SQL statements (gorm drivers)
}

// CounterConfig configures the installation id counter
type CounterConfig struct {
	Type     string `mapstructure:"type"` // store (default), redis
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
}

// QueueConfig represents message queue configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: memory (default), nats, redis, kafka
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`
	RedisGroup    string `mapstructure:"redis_group"`
	RedisConsumer string `mapstructure:"redis_consumer"`
	RedisMaxLen   int64  `mapstructure:"redis_max_len"` // approximate stream cap, 0 keeps everything

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// EventsConfig controls domain event publishing
type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// UploadsConfig controls where attachments are written and how they are addressed
type UploadsConfig struct {
	Dir       string `mapstructure:"dir"`
	BaseURL   string `mapstructure:"base_url"` // public URL prefix, e.g. https://host/v1/uploads
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// AuthConfig represents shared-secret authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"` // Enable/disable the secret check on mutating requests
	Secrets []string `mapstructure:"secrets"` // Accepted shared secrets
}

// CacheConfig configures read caches
type CacheConfig struct {
	SurveyTTL time.Duration `mapstructure:"survey_ttl"` // 0 disables the survey-by-code cache
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // file rotation size
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Counter.Validate(); err != nil {
		return fmt.Errorf("counter config: %w", err)
	}

	if c.Events.Enabled {
		if err := c.Queue.Validate(); err != nil {
			return fmt.Errorf("queue config: %w", err)
		}
	}

	if err := c.Uploads.Validate(); err != nil {
		return fmt.Errorf("uploads config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	if c.RegisterPerMinute < 0 {
		return fmt.Errorf("register_per_minute cannot be negative")
	}

	return nil
}

// Validate validates store configuration
func (c *StoreConfig) Validate() error {
	switch c.Driver {
	case "memory":
		return nil
	case "mongo", "postgres", "sqlite":
		if c.URL == "" {
			return fmt.Errorf("store.url is required for driver %s", c.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of: memory, mongo, postgres, sqlite")
	}

	if c.Driver == "mongo" && c.Database == "" {
		return fmt.Errorf("store.database is required for driver mongo")
	}

	return nil
}

// Validate validates counter configuration
func (c *CounterConfig) Validate() error {
	switch c.Type {
	case "", "store":
		return nil
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("counter.redis_url is required for type redis")
		}
		return nil
	default:
		return fmt.Errorf("counter.type must be 'store' or 'redis'")
	}
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	switch strings.ToLower(c.Type) {
	case "", "memory":
		return nil
	case "nats", "redis":
		if c.URL == "" {
			return fmt.Errorf("queue.url is required for type %s", c.Type)
		}
		return nil
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("queue.kafka_brokers is required for type kafka")
		}
		return nil
	default:
		return fmt.Errorf("queue.type must be one of: memory, nats, redis, kafka")
	}
}

// Validate validates uploads configuration
func (c *UploadsConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("uploads.dir is required")
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("uploads.base_url must be an absolute http(s) URL")
	}

	if c.MaxSizeMB <= 0 {
		return fmt.Errorf("uploads.max_size_mb must be positive")
	}

	return nil
}

// Validate validates auth configuration
func (c *AuthConfig) Validate() error {
	if c.Enabled && len(c.Secrets) == 0 {
		return fmt.Errorf("auth.secrets is required when auth is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
