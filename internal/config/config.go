package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPromptPrefix frames the fallback completion request. The user message is appended to it.
const DefaultPromptPrefix = "You are answering a chat message on behalf of a user who is not available or offline. " +
	"Answer the message in a way that is helpful and informative.\n" +
	"Here is the message you need to respond to: "

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"`
	DatabasePath       string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret          string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer          string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience        string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL             time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	NATSURL            string        `mapstructure:"nats_url" yaml:"nats_url"`
	Presence           Presence      `mapstructure:"presence" yaml:"presence"`
	Responder          Responder     `mapstructure:"responder" yaml:"responder"`
}

// Presence selects the presence store backend.
type Presence struct {
	Backend  string `mapstructure:"backend" yaml:"backend"` // sqlite or redis
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
}

// Responder configures the fallback text-completion backend.
type Responder struct {
	Provider     string        `mapstructure:"provider" yaml:"provider"` // openai, ollama or canned
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	Model        string        `mapstructure:"model" yaml:"model"`
	PromptPrefix string        `mapstructure:"prompt_prefix" yaml:"prompt_prefix"`
	CannedReply  string        `mapstructure:"canned_reply" yaml:"canned_reply"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "awayrelay.db",
		JWTIssuer:          "awayrelay",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    1 << 16,
		RateLimitPerMinute: 120,
		StoreTimeout:       5 * time.Second,
		Presence: Presence{
			Backend: "sqlite",
		},
		Responder: Responder{
			Provider:     "canned",
			Model:        "gpt-3.5-turbo",
			PromptPrefix: DefaultPromptPrefix,
			CannedReply:  "I'm not available right now. I'll get back to you soon.",
			Timeout:      30 * time.Second,
		},
	}
}

// Validate reports configuration that the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	switch c.Presence.Backend {
	case "sqlite":
	case "redis":
		if c.Presence.RedisURL == "" {
			errs = append(errs, errors.New("presence.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown presence.backend %q", c.Presence.Backend))
	}
	switch c.Responder.Provider {
	case "openai":
		if c.Responder.APIKey == "" && c.Responder.BaseURL == "" {
			errs = append(errs, errors.New("responder.api_key is required for openai"))
		}
	case "ollama", "canned":
	default:
		errs = append(errs, fmt.Errorf("unknown responder.provider %q", c.Responder.Provider))
	}
	if c.Responder.Timeout <= 0 {
		errs = append(errs, errors.New("responder.timeout must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	return errors.Join(errs...)
}
