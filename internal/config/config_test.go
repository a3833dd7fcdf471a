package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000", cfg.Admin.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Admin.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Validation.DoneDwell)
	assert.Equal(t, time.Duration(0), cfg.Validation.IdleTimeout)
	assert.Equal(t, 6000, cfg.Validation.MaxQueryBytes)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "synapse.events", cfg.Events.Exchange)
	assert.False(t, cfg.Callback.Enabled())
	assert.Equal(t, 10*time.Second, cfg.Callback.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
admin:
  base_url: https://keys.example.com
  rate_limit: 2
validation:
  done_dwell: 3s
  idle_timeout: 45s
  max_query_bytes: 1024
events:
  enabled: true
  url: amqp://u:p@mq:5672/
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://keys.example.com", cfg.Admin.BaseURL)
	assert.Equal(t, 2.0, cfg.Admin.RateLimit)
	assert.Equal(t, 5, cfg.Admin.Burst)
	assert.Equal(t, 3*time.Second, cfg.Validation.DoneDwell)
	assert.Equal(t, 45*time.Second, cfg.Validation.IdleTimeout)
	assert.Equal(t, 1024, cfg.Validation.MaxQueryBytes)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "console", cfg.Logging.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  base_url: http://a\n"), 0o644))
	t.Setenv("SYNAPSE_ADMIN_BASE_URL", "http://from-env:9000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:9000", cfg.Admin.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing base url", func(c *Config) { c.Admin.BaseURL = "" }, "admin.base_url is required"},
		{"bad scheme", func(c *Config) { c.Admin.BaseURL = "ftp://x" }, "http(s)"},
		{"zero rate", func(c *Config) { c.Admin.RateLimit = 0 }, "rate_limit"},
		{"tiny query budget", func(c *Config) { c.Validation.MaxQueryBytes = 10 }, "max_query_bytes"},
		{"events without url", func(c *Config) { c.Events.Enabled = true; c.Events.URL = "" }, "events.url"},
		{"bad callback url", func(c *Config) { c.Callback.CompleteURL = "tcp://x" }, "callback.complete_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSetAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Set(path, "admin.base_url", "http://keys.internal:8000"))
	require.NoError(t, Set(path, "admin.admin_key", "secret"))

	got, err := Get(path, "admin.base_url")
	require.NoError(t, err)
	assert.Equal(t, "http://keys.internal:8000", got)

	masked, err := Get(path, "admin.admin_key")
	require.NoError(t, err)
	assert.Equal(t, "****", masked)

	all, err := All(path)
	require.NoError(t, err)
	assert.Equal(t, "(not set)", all["server.jwt_secret"])
}

func TestSet_UnknownKey(t *testing.T) {
	err := Set(filepath.Join(t.TempDir(), "config.yaml"), "nope.key", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration key")
}
