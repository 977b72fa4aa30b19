// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds all configuration for the application.
type Config struct {
	Env string `env:"ENV" envDefault:"production"`

	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`

	// Database
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"host=localhost user=lexi password=lexi dbname=lexi port=5432 sslmode=disable"`

	// NATS settings. An empty URL disables event publishing.
	NATSURL      string `env:"NATS_URL"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`

	// HTTP
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// JWT settings
	JWTSecret string `env:"JWT_SECRET" envDefault:"development-secret-change-in-production"`

	// LLM settings
	AnthropicAPIKey  string  `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string  `env:"ANTHROPIC_BASE_URL"`
	OpenAIAPIKey     string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string  `env:"OPENAI_BASE_URL"`
	LLMProvider      string  `env:"LLM_PROVIDER" envDefault:"anthropic"`
	LLMModel         string  `env:"LLM_MODEL"`
	LLMTemperature   float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`

	// Voice
	TTSVoice       string        `env:"TTS_VOICE" envDefault:"nova"`
	AudioStreamTTL time.Duration `env:"AUDIO_STREAM_TTL" envDefault:"5m"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Retention
	RetentionDays int    `env:"RETENTION_DAYS" envDefault:"15"`
	RetentionCron string `env:"RETENTION_CRON" envDefault:"15 3 * * *"`
	PruneOnStats  bool   `env:"PRUNE_ON_STATS" envDefault:"true"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
}

// Load reads an optional .env file and then the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderAnthropic, ProviderOpenAI, c.LLMProvider)
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.LLMTemperature)
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}
	return nil
}

// IsDevelopment reports whether ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LLMAPIKey returns the key of the selected provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// LLMBaseURL returns the endpoint override of the selected provider.
func (c *Config) LLMBaseURL() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIBaseURL
	}
	return c.AnthropicBaseURL
}
