// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DBURL                string        `mapstructure:"DB_URL"`
	GithubUsername       string        `mapstructure:"GITHUB_USERNAME"`
	GithubToken          string        `mapstructure:"GITHUB_TOKEN"`
	CacheDurationMinutes int           `mapstructure:"CACHE_DURATION_MINUTES"`
	SyncInterval         time.Duration `mapstructure:"SYNC_INTERVAL"`
	HTTPAddr             string        `mapstructure:"HTTP_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CACHE_DURATION_MINUTES", 15)
	viper.SetDefault("SYNC_INTERVAL", "1h")
	viper.SetDefault("HTTP_ADDR", ":8080")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables. AutomaticEnv alone only resolves keys viper
	// already knows about, so bind each key explicitly: without this, values
	// set purely in the environment (no .env file) never reach Unmarshal.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{
		"LOG_LEVEL", "DB_URL", "GITHUB_USERNAME", "GITHUB_TOKEN",
		"CACHE_DURATION_MINUTES", "SYNC_INTERVAL", "HTTP_ADDR",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields. GITHUB_TOKEN is deliberately optional: the
	// listing endpoint is public and the token only raises rate limits.
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubUsername == "" {
		return nil, errors.New("GITHUB_USERNAME is a required configuration field")
	}
	if cfg.CacheDurationMinutes <= 0 {
		return nil, errors.New("CACHE_DURATION_MINUTES must be a positive number of minutes")
	}

	return &cfg, nil
}
