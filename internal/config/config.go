// Package config provides typed configuration for the bar ingestion
// pipeline, loaded from an optional JSON file with environment-variable
// overrides applied on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	API     APIConfig     `json:"api"`
	Cache   CacheConfig   `json:"cache"`
	Logging LoggingConfig `json:"logging"`
}

// APIConfig configures the market-data transport.
type APIConfig struct {
	BaseURL           string `json:"base_url" env:"BARINGEST_API_BASE_URL"`
	TokenPath         string `json:"token_path" env:"BARINGEST_TOKEN_PATH"`
	Timeout           string `json:"timeout" env:"BARINGEST_HTTP_TIMEOUT"`
	MaxRetries        int    `json:"max_retries" env:"BARINGEST_MAX_RETRIES"`
	RequestsPerSecond int    `json:"requests_per_second" env:"BARINGEST_REQUESTS_PER_SECOND"`
}

// CacheConfig configures the on-disk cache store.
type CacheConfig struct {
	Root string `json:"root" env:"BARINGEST_DATA_ROOT"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"BARINGEST_LOG_LEVEL"`       // debug, info, warn, error
	Format     string `json:"format" env:"BARINGEST_LOG_FORMAT"`     // json, text
	Output     string `json:"output" env:"BARINGEST_LOG_OUTPUT"`     // stdout, stderr, file
	FilePath   string `json:"file_path" env:"BARINGEST_LOG_FILE"`    // used when output is "file"
	MaxSize    int    `json:"max_size" env:"BARINGEST_LOG_MAX_SIZE"` // MB per rotated file
	MaxBackups int    `json:"max_backups" env:"BARINGEST_LOG_MAX_BACKUPS"`
	MaxAge     int    `json:"max_age" env:"BARINGEST_LOG_MAX_AGE"` // days
	Compress   bool   `json:"compress" env:"BARINGEST_LOG_COMPRESS"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://api.schwabapi.com",
			TokenPath:         "marketdata_token.json",
			Timeout:           "30s",
			MaxRetries:        3,
			RequestsPerSecond: 10,
		},
		Cache: CacheConfig{
			Root: "data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     14,
		},
	}
}

// Load builds the configuration from defaults, then the JSON file at path
// (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.API.BaseURL, "BARINGEST_API_BASE_URL")
	setString(&cfg.API.TokenPath, "BARINGEST_TOKEN_PATH")
	setString(&cfg.API.Timeout, "BARINGEST_HTTP_TIMEOUT")
	setInt(&cfg.API.MaxRetries, "BARINGEST_MAX_RETRIES")
	setInt(&cfg.API.RequestsPerSecond, "BARINGEST_REQUESTS_PER_SECOND")

	setString(&cfg.Cache.Root, "BARINGEST_DATA_ROOT")

	setString(&cfg.Logging.Level, "BARINGEST_LOG_LEVEL")
	setString(&cfg.Logging.Format, "BARINGEST_LOG_FORMAT")
	setString(&cfg.Logging.Output, "BARINGEST_LOG_OUTPUT")
	setString(&cfg.Logging.FilePath, "BARINGEST_LOG_FILE")
	setInt(&cfg.Logging.MaxSize, "BARINGEST_LOG_MAX_SIZE")
	setInt(&cfg.Logging.MaxBackups, "BARINGEST_LOG_MAX_BACKUPS")
	setInt(&cfg.Logging.MaxAge, "BARINGEST_LOG_MAX_AGE")
	setBool(&cfg.Logging.Compress, "BARINGEST_LOG_COMPRESS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for values the pipeline cannot run
// with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}
	if c.Cache.Root == "" {
		return fmt.Errorf("cache.root cannot be empty")
	}
	if _, err := time.ParseDuration(c.API.Timeout); err != nil {
		return fmt.Errorf("api.timeout %q is not a duration: %w", c.API.Timeout, err)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries cannot be negative")
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging.file_path is required when output is \"file\"")
		}
	default:
		return fmt.Errorf("logging.output %q is not one of stdout, stderr, file", c.Logging.Output)
	}
	return nil
}

// HTTPTimeout returns the parsed API timeout. Validate guarantees the
// string parses; a zero duration falls back to the transport default.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 0
	}
	return d
}
