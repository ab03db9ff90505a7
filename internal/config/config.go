// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/maiarouter-node/internal/backend"
)

// Static errors for configuration validation.
var (
	// ErrAPIKeyRequired is returned when MAIAROUTER_API_KEY is not set.
	ErrAPIKeyRequired = errors.New("config: MAIAROUTER_API_KEY is required")
	// ErrInvalidFallbackFamily is returned when VIDEO_FALLBACK_FAMILY names no backend.
	ErrInvalidFallbackFamily = errors.New("config: VIDEO_FALLBACK_FAMILY must be empty, openai or vertex")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Maia Router settings
	APIKey  string `env:"MAIAROUTER_API_KEY, required" json:"-"` // Masked in JSON
	BaseURL string `env:"MAIAROUTER_BASE_URL, default=https://api.maiarouter.ai" json:"base_url"`

	// Video settings
	VertexStorageURI    string `env:"VERTEX_STORAGE_URI, default=gs://maiarouter/" json:"vertex_storage_uri"`
	VideoFallbackFamily string `env:"VIDEO_FALLBACK_FAMILY" json:"video_fallback_family,omitempty"`

	// Storage settings
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/maiarouter" json:"output_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// FallbackFamily returns the family assigned to video models no rule matches.
func (c *Config) FallbackFamily() (backend.Family, error) {
	f, err := backend.ParseFamily(c.VideoFallbackFamily)
	if err != nil {
		return backend.FamilyUnknown, ErrInvalidFallbackFamily
	}
	return f, nil
}

// Load reads .env.local and .env when present, then configuration from
// environment variables using go-envconfig. Variables already set in the
// environment take precedence over the files.
func Load() (*Config, error) {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}

	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "MAIAROUTER_API_KEY") {
			return nil, ErrAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrAPIKeyRequired
	}
	if _, err := c.FallbackFamily(); err != nil {
		return err
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, BaseURL: %s, VertexStorageURI: %s, VideoFallbackFamily: %s, OutputDir: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.BaseURL,
		c.VertexStorageURI,
		c.VideoFallbackFamily,
		c.OutputDir,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
