// internal/config/config_test.go
package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_EnvOnly(t *testing.T) {
	viper.Reset()
	t.Setenv("DB_URL", "postgres://env-host/db")
	t.Setenv("GITHUB_USERNAME", "env-user")
	t.Setenv("GITHUB_TOKEN", "env-token")

	cfg, err := LoadConfig()

	require.NoError(t, err, "values set only in the environment must be picked up")
	assert.Equal(t, "postgres://env-host/db", cfg.DBURL)
	assert.Equal(t, "env-user", cfg.GithubUsername)
	assert.Equal(t, "env-token", cfg.GithubToken)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15, cfg.CacheDurationMinutes)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	viper.Reset()
	t.Setenv("DB_URL", "")
	t.Setenv("GITHUB_USERNAME", "")

	_, err := LoadConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")
}

func TestLoadConfig_RejectsNonPositiveCacheDuration(t *testing.T) {
	viper.Reset()
	t.Setenv("DB_URL", "postgres://env-host/db")
	t.Setenv("GITHUB_USERNAME", "env-user")
	t.Setenv("CACHE_DURATION_MINUTES", "0")

	_, err := LoadConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_DURATION_MINUTES")
}
