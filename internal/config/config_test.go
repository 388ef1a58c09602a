package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
	assert.Equal(t, models.TierFree, cfg.UserTier())
	assert.Equal(t, "gemini", cfg.ClassifierProvider())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shelfscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: openai
model: gpt-4o-mini
classify_provider: ollama
rate_limit:
  max_calls: 5
  window: 10s
retry:
  max_retries: 1
  delay: 250ms
tier: premium
`), 0o644))

	t.Setenv("SHELFSCAN_PORT", "9000")
	t.Setenv("SHELFSCAN_RATE_LIMIT_MAX_CALLS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "ollama", cfg.ClassifierProvider())
	assert.Equal(t, 7, cfg.RateLimit.MaxCalls, "env overrides file")
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, uint(1), cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, models.TierPremium, cfg.UserTier())
	assert.Equal(t, 9000, cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "claude" }, wantErr: true},
		{name: "unknown classify provider", mutate: func(c *Config) { c.ClassifyProvider = "x" }, wantErr: true},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.MaxCalls = 0 }, wantErr: true},
		{name: "zero window", mutate: func(c *Config) { c.RateLimit.Window = 0 }, wantErr: true},
		{name: "pace below floor", mutate: func(c *Config) { c.Pace = 50 * time.Millisecond }, wantErr: true},
		{name: "zero pace", mutate: func(c *Config) { c.Pace = 0 }, wantErr: true},
		{name: "slower pace", mutate: func(c *Config) { c.Pace = 2 * time.Second }},
		{name: "negative free limit", mutate: func(c *Config) { c.FreeLimit = -1 }, wantErr: true},
		{name: "free limit zero", mutate: func(c *Config) { c.FreeLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
