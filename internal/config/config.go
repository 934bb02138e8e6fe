package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// Config holds all configuration for the chat history service.
type Config struct {
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Server    ServerConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Anthropic AnthropicConfig
	Context   ContextConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port string `envconfig:"SERVER_PORT" default:"8080"`
	// JWTSecret enables bearer authentication when set.
	JWTSecret string `envconfig:"JWT_SECRET"`
}

// StorageConfig selects and configures the conversation store.
type StorageConfig struct {
	Driver          string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	SQLitePath      string `envconfig:"SQLITE_PATH" default:"conversations.db"`
	BackupDir       string `envconfig:"BACKUP_DIR" default:"backups"`
	ExportDir       string `envconfig:"EXPORT_DIR" default:"exports"`
	DatabaseDSN     string `envconfig:"DATABASE_DSN"`
	DedupeByContent bool   `envconfig:"DEDUPE_BY_CONTENT" default:"false"`
}

// RedisConfig holds Redis configuration. Caching is off when URI is empty.
type RedisConfig struct {
	URI      string        `envconfig:"REDIS_URI"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"10m"`
}

// AnthropicConfig holds Anthropic Claude API configuration.
type AnthropicConfig struct {
	APIKey       string        `envconfig:"ANTHROPIC_API_KEY" required:"true"`
	Model        string        `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-20250514"`
	BaseURL      string        `envconfig:"ANTHROPIC_BASE_URL"`
	MaxRetries   uint64        `envconfig:"ANTHROPIC_MAX_RETRIES" default:"5"`
	RetryDelay   time.Duration `envconfig:"ANTHROPIC_RETRY_DELAY" default:"1s"`
	RetryJitter  time.Duration `envconfig:"ANTHROPIC_RETRY_JITTER" default:"500ms"`
	SystemPrompt string        `envconfig:"SYSTEM_PROMPT"`
}

// ContextConfig controls the outgoing context window.
type ContextConfig struct {
	MaxTokens int `envconfig:"CONTEXT_MAX_TOKENS" default:"150000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for logical errors beyond required fields.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case StorageDriverPostgres:
		if c.Storage.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("CONTEXT_MAX_TOKENS must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}
