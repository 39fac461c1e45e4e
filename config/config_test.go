package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DEBUG", "FILE", "SIZE", "MINE_PROBABILITY", "LOG_LEVEL", "LOG_DIR",
	"LOG_CONSOLE", "CACHE", "CACHE_TTL", "REDIS_ADDR", "WRITE_TIMEOUT",
}

// clearEnv unsets every MINESWEEPER_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, k := range envKeys {
		key := envPrefix + k
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithEnvFile(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 4444, cfg.Port)
	assert.Equal(t, ":4444", cfg.Addr())
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.File)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
	assert.Equal(t, 0.25, cfg.MineProbability)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, CacheMemory, cfg.Cache)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}

func TestLoad_Flags(t *testing.T) {
	clearEnv(t)

	t.Run("all flags", func(t *testing.T) {
		cfg, err := LoadWithEnvFile([]string{
			"--port", "0", "--debug", "--size", "7,3", "--mine-probability", "0.5",
			"--log-level", "debug", "--cache", "redis", "--redis-addr", "cache:6379",
			"--cache-ttl", "30s", "--write-timeout", "0s",
		}, "")
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Port)
		assert.True(t, cfg.Debug)
		assert.Equal(t, 7, cfg.Width)
		assert.Equal(t, 3, cfg.Height)
		assert.Equal(t, 0.5, cfg.MineProbability)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, CacheRedis, cfg.Cache)
		assert.Equal(t, "cache:6379", cfg.RedisAddr)
		assert.Equal(t, 30*time.Second, cfg.CacheTTL)
		assert.Zero(t, cfg.WriteTimeout)
	})

	t.Run("file", func(t *testing.T) {
		cfg, err := LoadWithEnvFile([]string{"--file", "boards/seven"}, "")
		require.NoError(t, err)
		assert.Equal(t, "boards/seven", cfg.File)
	})

	t.Run("help", func(t *testing.T) {
		_, err := LoadWithEnvFile([]string{"-h"}, "")
		assert.True(t, errors.Is(err, flag.ErrHelp))
	})
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	cases := map[string][]string{
		"file and size":      {"--file", "b", "--size", "3,3"},
		"port too large":     {"--port", "70000"},
		"negative port":      {"--port", "-1"},
		"size without comma": {"--size", "10"},
		"zero width":         {"--size", "0,4"},
		"size over limit":    {"--size", "1000000,1000000"},
		"bad height":         {"--size", "4,x"},
		"probability":        {"--mine-probability", "1.5"},
		"log level":          {"--log-level", "loud"},
		"cache backend":      {"--cache", "disk"},
		"redis without addr": {"--cache", "redis", "--redis-addr", ""},
		"zero ttl":           {"--cache-ttl", "0s"},
		"extra argument":     {"extra"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWithEnvFile(args, "")
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("ttl ignored without cache", func(t *testing.T) {
		_, err := LoadWithEnvFile([]string{"--cache", "none", "--cache-ttl", "0s"}, "")
		assert.NoError(t, err)
	})
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)

	t.Run("environment sets defaults", func(t *testing.T) {
		t.Setenv("MINESWEEPER_PORT", "5555")
		t.Setenv("MINESWEEPER_DEBUG", "true")
		t.Setenv("MINESWEEPER_SIZE", "4,5")
		t.Setenv("MINESWEEPER_CACHE", "none")

		cfg, err := LoadWithEnvFile(nil, "")
		require.NoError(t, err)
		assert.Equal(t, 5555, cfg.Port)
		assert.True(t, cfg.Debug)
		assert.Equal(t, 4, cfg.Width)
		assert.Equal(t, 5, cfg.Height)
		assert.Equal(t, CacheNone, cfg.Cache)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("MINESWEEPER_PORT", "5555")

		cfg, err := LoadWithEnvFile([]string{"--port", "6666"}, "")
		require.NoError(t, err)
		assert.Equal(t, 6666, cfg.Port)
	})

	t.Run("malformed value", func(t *testing.T) {
		t.Setenv("MINESWEEPER_WRITE_TIMEOUT", "soon")

		_, err := LoadWithEnvFile(nil, "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("oversized board from environment", func(t *testing.T) {
		t.Setenv("MINESWEEPER_SIZE", "20000,20000")

		_, err := LoadWithEnvFile(nil, "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("file from environment excludes size flag", func(t *testing.T) {
		t.Setenv("MINESWEEPER_FILE", "board")

		_, err := LoadWithEnvFile([]string{"--size", "2,2"}, "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MINESWEEPER_PORT=7777\nMINESWEEPER_LOG_LEVEL=warn\n"), 0o600))

	t.Run("values are read", func(t *testing.T) {
		cfg, err := LoadWithEnvFile(nil, path)
		require.NoError(t, err)
		assert.Equal(t, 7777, cfg.Port)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("process environment wins", func(t *testing.T) {
		t.Setenv("MINESWEEPER_PORT", "8888")

		cfg, err := LoadWithEnvFile(nil, path)
		require.NoError(t, err)
		assert.Equal(t, 8888, cfg.Port)
	})

	t.Run("missing file is fine", func(t *testing.T) {
		cfg, err := LoadWithEnvFile(nil, filepath.Join(t.TempDir(), "absent.env"))
		require.NoError(t, err)
		assert.Equal(t, DefaultPort, cfg.Port)
	})
}
