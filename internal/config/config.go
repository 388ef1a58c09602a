// Package config loads shelfscan settings from defaults, an optional YAML
// file, and SHELFSCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// Config is the full set of runtime settings
type Config struct {
	Provider          string          `mapstructure:"provider"`
	Model             string          `mapstructure:"model"`
	Temperature       float64         `mapstructure:"temperature"`
	ClassifyProvider  string          `mapstructure:"classify_provider"`
	ClassifyModel     string          `mapstructure:"classify_model"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
	Retry             RetryConfig     `mapstructure:"retry"`
	Pace              time.Duration   `mapstructure:"pace"`
	Tier              string          `mapstructure:"tier"`
	FreeLimit         int             `mapstructure:"free_limit"`
	Database          string          `mapstructure:"database"`
	GoogleBooksAPIKey string          `mapstructure:"google_books_api_key"`
	LogLevel          string          `mapstructure:"log_level"`
	Port              int             `mapstructure:"port"`
}

type RateLimitConfig struct {
	MaxCalls int           `mapstructure:"max_calls"`
	Window   time.Duration `mapstructure:"window"`
}

type RetryConfig struct {
	MaxRetries uint          `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
}

// MinPace is the shortest allowed delay between enriched books
const MinPace = 500 * time.Millisecond

// Defaults returns the settings used when nothing overrides them
func Defaults() Config {
	return Config{
		Provider:    "gemini",
		Temperature: 0.1,
		RateLimit: RateLimitConfig{
			MaxCalls: 30,
			Window:   time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Delay:      2 * time.Second,
		},
		Pace:      MinPace,
		Tier:      string(models.TierFree),
		FreeLimit: 25,
		Database:  "shelfscan.db",
		LogLevel:  "info",
		Port:      8888,
	}
}

// Load reads configuration. cfgFile may be empty, in which case
// shelfscan.yaml is looked for in the working directory and $HOME/.shelfscan.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("classify_provider", "")
	v.SetDefault("classify_model", "")
	v.SetDefault("rate_limit.max_calls", d.RateLimit.MaxCalls)
	v.SetDefault("rate_limit.window", d.RateLimit.Window)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("pace", d.Pace)
	v.SetDefault("tier", d.Tier)
	v.SetDefault("free_limit", d.FreeLimit)
	v.SetDefault("database", d.Database)
	v.SetDefault("google_books_api_key", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("port", d.Port)

	// SHELFSCAN_RATE_LIMIT_MAX_CALLS etc.
	v.SetEnvPrefix("SHELFSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("shelfscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.shelfscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	switch c.ClassifyProvider {
	case "", "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported classify_provider: %s", c.ClassifyProvider)
	}
	if c.RateLimit.MaxCalls <= 0 {
		return fmt.Errorf("rate_limit.max_calls must be positive, got %d", c.RateLimit.MaxCalls)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Pace < MinPace {
		return fmt.Errorf("pace must be at least %s, got %s", MinPace, c.Pace)
	}
	if c.FreeLimit < 0 {
		return fmt.Errorf("free_limit must not be negative, got %d", c.FreeLimit)
	}
	return nil
}

// ClassifierProvider is the provider used for age ratings, falling back
// to the vision provider
func (c *Config) ClassifierProvider() string {
	if c.ClassifyProvider != "" {
		return c.ClassifyProvider
	}
	return c.Provider
}

// UserTier is the configured subscription tier
func (c *Config) UserTier() models.Tier {
	return models.ParseTier(c.Tier)
}
