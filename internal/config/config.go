// Package config provides configuration loading and validation for the handoff service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the service configuration that can be loaded from a JSON file.
// All fields are optional; missing values come from the environment or defaults.
type Config struct {
	// Service
	Port          int    `json:"port,omitempty"`
	DatabaseURL   string `json:"database_url,omitempty"`   // PostgreSQL connection URL
	RedisURL      string `json:"redis_url,omitempty"`      // Redis URL for the shared status cache
	GeminiAPIKey  string `json:"gemini_api_key,omitempty"` // Gemini completion + embeddings
	OpenAIAPIKey  string `json:"openai_api_key,omitempty"` // OpenAI-compatible secondary provider
	OpenAIBaseURL string `json:"openai_base_url,omitempty"`
	JWTSecret     string `json:"jwt_secret,omitempty"` // Enables bearer auth when set
	LogMode       string `json:"log_mode,omitempty"`   // "dev" or "prod"

	// Pipeline policy
	Pipeline Policy `json:"pipeline"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Default returns the service defaults
func Default() Config {
	return Config{
		Port:     8080,
		LogMode:  "dev",
		Pipeline: DefaultPolicy(),
	}
}

// ApplyEnv fills empty service fields from environment variables
func (c *Config) ApplyEnv() {
	c.DatabaseURL = firstNonEmpty(c.DatabaseURL, os.Getenv("DATABASE_URL"))
	c.RedisURL = firstNonEmpty(c.RedisURL, os.Getenv("REDIS_URL"))
	c.GeminiAPIKey = firstNonEmpty(c.GeminiAPIKey, os.Getenv("GEMINI_API_KEY"))
	c.OpenAIAPIKey = firstNonEmpty(c.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
	c.OpenAIBaseURL = firstNonEmpty(c.OpenAIBaseURL, os.Getenv("OPENAI_BASE_URL"))
	c.JWTSecret = firstNonEmpty(c.JWTSecret, os.Getenv("JWT_SECRET"))
	c.LogMode = firstNonEmpty(c.LogMode, os.Getenv("LOG_MODE"))
	if c.Port == 0 {
		c.Port = GetEnvInt("PORT", 0)
	}
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	result.DatabaseURL = firstNonEmpty(result.DatabaseURL, defaults.DatabaseURL)
	result.RedisURL = firstNonEmpty(result.RedisURL, defaults.RedisURL)
	result.GeminiAPIKey = firstNonEmpty(result.GeminiAPIKey, defaults.GeminiAPIKey)
	result.OpenAIAPIKey = firstNonEmpty(result.OpenAIAPIKey, defaults.OpenAIAPIKey)
	result.OpenAIBaseURL = firstNonEmpty(result.OpenAIBaseURL, defaults.OpenAIBaseURL)
	result.JWTSecret = firstNonEmpty(result.JWTSecret, defaults.JWTSecret)
	result.LogMode = firstNonEmpty(result.LogMode, defaults.LogMode)
	result.Pipeline = result.Pipeline.MergeWithDefaults(defaults.Pipeline)

	return result
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	switch c.LogMode {
	case "", "dev", "prod", "production", "development":
	default:
		return fmt.Errorf("config error: unknown 'log_mode' %q", c.LogMode)
	}
	return c.Pipeline.Validate()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
