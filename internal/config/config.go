// Package config loads the usefetch command settings from an optional YAML
// file, a .env file and USEFETCH_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nozzle/usefetch"
)

// Config holds the command configuration.
type Config struct {
	BaseURL   string            `mapstructure:"base_url"`
	Headers   map[string]string `mapstructure:"headers"`
	AutoFetch bool              `mapstructure:"auto_fetch"`
	Debounce  time.Duration     `mapstructure:"debounce"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	LogLevel  string            `mapstructure:"log_level"`
	Tracing   bool              `mapstructure:"tracing"`
}

// Load reads the configuration. path names a YAML file and may be empty;
// environment variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetDefault("base_url", "")
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("auto_fetch", false)
	v.SetDefault("debounce", "0s")
	v.SetDefault("timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("tracing", false)

	v.SetEnvPrefix("usefetch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Debounce < 0 {
		return nil, errors.New("invalid debounce (must not be negative)")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("invalid timeout (must not be negative)")
	}

	return &cfg, nil
}

// Fetch returns the usefetch.Config a Provider is created with.
func (c *Config) Fetch() usefetch.Config {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return usefetch.Config{
		BaseURL:   c.BaseURL,
		Headers:   headers,
		AutoFetch: c.AutoFetch,
	}
}
