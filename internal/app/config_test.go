package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	for _, key := range []string{"EVENT_BUS", "APP_ADDR", "RATE_LIMIT_PER_MINUTE", "APP_ENV", "DB_MAX_CONNS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "memory", cfg.EventBus)
	require.Equal(t, 300, cfg.RateLimitPerMinute)
	require.False(t, cfg.IsProduction())
	require.Equal(t, int32(5), cfg.MaxConns())
}

func TestLoadConfigRejectsUnknownBus(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("EVENT_BUS", "kafka")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "EVENT_BUS")
}

func TestDatabaseURLFollowsEnvironment(t *testing.T) {
	cfg := &Config{
		AppEnv:                "production",
		DatabaseURLDefault:    "postgres://default",
		DatabaseURLProduction: "postgres://prod",
	}
	require.Equal(t, "postgres://prod", cfg.DatabaseURL())
	require.Equal(t, int32(20), cfg.MaxConns())

	cfg.AppEnv = "staging"
	require.Equal(t, "postgres://default", cfg.DatabaseURL())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel("debug").String())
	require.Equal(t, "WARN", parseLevel(" Warning ").String())
	require.Equal(t, "INFO", parseLevel("").String())
}
