// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "chatbridge", cfg.Logger.ServiceName)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 10, cfg.Rate.RequestsPerMinute)
	assert.Equal(t, 3*time.Second, cfg.Rate.MinInterval)
	assert.Equal(t, 120*time.Second, cfg.Response.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Response.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Response.QuietPeriod)
	assert.False(t, cfg.Response.ReturnPartialOnTimeout)
}

func TestNewConfigFromViperReadsYaml(t *testing.T) {
	yaml := `
server:
  port: 9000
browser:
  headless: true
  user_data_dir: "/tmp/profile"
rate:
  requests_per_minute: 20
  min_interval: "1s"
response:
  timeout: "30s"
  return_partial_on_timeout: true
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yaml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/profile", cfg.Browser.UserDataDir)
	assert.Equal(t, 20, cfg.Rate.RequestsPerMinute)
	assert.Equal(t, time.Second, cfg.Rate.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.Response.Timeout)
	assert.True(t, cfg.Response.ReturnPartialOnTimeout)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Browser.UserDataDir = "/tmp/profile"
		return cfg
	}

	t.Run("valid defaults", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("negative quota", func(t *testing.T) {
		cfg := valid()
		cfg.Rate.RequestsPerMinute = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate.requests_per_minute")
	})

	t.Run("zero poll interval", func(t *testing.T) {
		cfg := valid()
		cfg.Response.PollInterval = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response.poll_interval")
	})

	t.Run("quiet period exceeding ceiling", func(t *testing.T) {
		cfg := valid()
		cfg.Response.QuietPeriod = 2 * time.Minute
		cfg.Response.Timeout = time.Minute
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response.timeout must exceed")
	})

	t.Run("inverted typing delays", func(t *testing.T) {
		cfg := valid()
		cfg.Typing.MinDelay = 100 * time.Millisecond
		cfg.Typing.MaxDelay = 10 * time.Millisecond
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "typing delays")
	})

	t.Run("missing selector path", func(t *testing.T) {
		cfg := valid()
		cfg.Selectors.Path = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestNormalizePathsExpandsHome(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.normalizePaths())
	assert.NotContains(t, cfg.Browser.UserDataDir, "~")
}
