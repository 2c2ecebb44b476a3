// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	Rate      RateConfig      `mapstructure:"rate" yaml:"rate"`
	Response  ResponseConfig  `mapstructure:"response" yaml:"response"`
	Typing    TypingConfig    `mapstructure:"typing" yaml:"typing"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig holds settings for the HTTP facade.
type ServerConfig struct {
	Host string     `mapstructure:"host" yaml:"host"`
	Port int        `mapstructure:"port" yaml:"port"`
	CORS CORSConfig `mapstructure:"cors" yaml:"cors"`
	// ClientRPS caps requests per second per remote address at the
	// middleware layer, before admission control is even consulted.
	ClientRPS   float64 `mapstructure:"client_rps" yaml:"client_rps"`
	ClientBurst int     `mapstructure:"client_burst" yaml:"client_burst"`
}

// CORSConfig controls cross-origin headers on the facade.
type CORSConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Origins []string `mapstructure:"origins" yaml:"origins"`
}

// BrowserConfig holds settings for the Chrome instance.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// UserDataDir is the persistent profile directory. Login artifacts
	// live here; the bridge never reads the directory itself, it only
	// observes login status through the DOM.
	UserDataDir       string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout     time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Args              []string       `mapstructure:"args" yaml:"args"`
}

// SelectorsConfig locates the external selector mapping.
type SelectorsConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// RateConfig parameterizes the admission governor.
type RateConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MinInterval       time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// ResponseConfig tunes completion detection.
type ResponseConfig struct {
	// Timeout is the hard ceiling on waiting for a reply.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// PollInterval is how often the response region is sampled.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// QuietPeriod is how long the text must stay unchanged, with the
	// streaming indicator absent, before the reply counts as complete.
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
	// ReturnPartialOnTimeout surfaces whatever text was last observed
	// when the ceiling elapses, instead of discarding it.
	ReturnPartialOnTimeout bool `mapstructure:"return_partial_on_timeout" yaml:"return_partial_on_timeout"`
}

// TypingConfig paces keystroke injection. Zero delays disable pacing.
type TypingConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chatbridge")
	v.SetDefault("logger.log_file", "chatbridge.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.origins", []string{"*"})
	v.SetDefault("server.client_rps", 5.0)
	v.SetDefault("server.client_burst", 10)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.chatbridge/profile")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Selectors --
	v.SetDefault("selectors.path", "config/selectors.yaml")
	v.SetDefault("selectors.watch", true)

	// -- Rate --
	v.SetDefault("rate.requests_per_minute", 10)
	v.SetDefault("rate.min_interval", "3s")

	// -- Response --
	v.SetDefault("response.timeout", "120s")
	v.SetDefault("response.poll_interval", "500ms")
	v.SetDefault("response.quiet_period", "2s")
	v.SetDefault("response.return_partial_on_timeout", false)

	// -- Typing --
	v.SetDefault("typing.min_delay", "30ms")
	v.SetDefault("typing.max_delay", "120ms")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.normalizePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalizePaths expands "~" in configured paths to the user's home.
func (c *Config) normalizePaths() error {
	expanded, err := homedir.Expand(c.Browser.UserDataDir)
	if err != nil {
		return fmt.Errorf("failed to expand browser.user_data_dir: %w", err)
	}
	c.Browser.UserDataDir = filepath.Clean(expanded)

	expanded, err = homedir.Expand(c.Selectors.Path)
	if err != nil {
		return fmt.Errorf("failed to expand selectors.path: %w", err)
	}
	c.Selectors.Path = filepath.Clean(expanded)
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Browser.UserDataDir == "" {
		return fmt.Errorf("browser.user_data_dir is required")
	}
	if c.Selectors.Path == "" {
		return fmt.Errorf("selectors.path is required")
	}
	if c.Rate.RequestsPerMinute < 0 {
		return fmt.Errorf("rate.requests_per_minute must not be negative")
	}
	if c.Rate.MinInterval < 0 {
		return fmt.Errorf("rate.min_interval must not be negative")
	}
	if c.Response.PollInterval <= 0 {
		return fmt.Errorf("response.poll_interval must be a positive duration")
	}
	if c.Response.QuietPeriod <= 0 {
		return fmt.Errorf("response.quiet_period must be a positive duration")
	}
	if c.Response.Timeout <= c.Response.QuietPeriod {
		return fmt.Errorf("response.timeout must exceed response.quiet_period")
	}
	if c.Typing.MinDelay < 0 || c.Typing.MaxDelay < c.Typing.MinDelay {
		return fmt.Errorf("typing delays must satisfy 0 <= min_delay <= max_delay")
	}
	return nil
}
