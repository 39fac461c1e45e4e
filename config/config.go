// Package config resolves the server configuration from command-line flags,
// MINESWEEPER_* environment variables and an optional .env file.
//
// Precedence, highest first: flags, process environment, .env file, defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cyberinferno/minesweeper/layout"
	"github.com/cyberinferno/minesweeper/logger"
)

// ErrInvalidConfig is wrapped by every validation error returned from Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Cache backends accepted by --cache.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const (
	DefaultPort         = 4444
	DefaultSize         = 10
	DefaultCacheTTL     = 5 * time.Minute
	DefaultWriteTimeout = 10 * time.Second
	DefaultRedisAddr    = "localhost:6379"
	DefaultEnvFile      = ".env"
)

const envPrefix = "MINESWEEPER_"

// Config is the resolved process configuration.
type Config struct {
	Port  int
	Debug bool

	// File is the board description to load. When empty a random board of
	// Width x Height is generated with MineProbability.
	File            string
	Width           int
	Height          int
	MineProbability float64

	LogLevel   string
	LogDir     string
	LogConsole bool

	Cache     string
	CacheTTL  time.Duration
	RedisAddr string

	WriteTimeout time.Duration
}

// Addr returns the listen address for Port on all interfaces.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load resolves the configuration from args (without the program name),
// the environment and ./.env when present.
func Load(args []string) (Config, error) {
	return LoadWithEnvFile(args, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit env file path. A missing file is
// not an error; an unreadable or malformed one is.
//
// Parameters:
//   - args: Command-line arguments without the program name
//   - envFile: Path of the dotenv file; empty skips it
//
// Returns:
//   - The validated Config, or an error wrapping ErrInvalidConfig,
//     flag.ErrHelp when help was requested, or the env file read error
func LoadWithEnvFile(args []string, envFile string) (Config, error) {
	env, err := newEnvSource(envFile)
	if err != nil {
		return Config{}, err
	}

	cfg, sizeFromEnv, err := defaultsFromEnv(env)
	if err != nil {
		return Config{}, err
	}

	var size string
	fs := flag.NewFlagSet("minesweeper-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on (0-65535)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "keep sessions open after a detonation")
	fs.StringVar(&cfg.File, "file", cfg.File, "board description file; excludes --size")
	fs.StringVar(&size, "size", "", "random board size as WIDTH,HEIGHT; excludes --file")
	fs.Float64Var(&cfg.MineProbability, "mine-probability", cfg.MineProbability, "mine probability of a random board")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for daily log files; empty disables file logging")
	fs.BoolVar(&cfg.LogConsole, "log-console", cfg.LogConsole, "human-readable console logs instead of JSON")
	fs.StringVar(&cfg.Cache, "cache", cfg.Cache, "render cache backend: none, memory or redis")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "how long a cached render is kept")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for --cache redis")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-reply write timeout; 0 disables it")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected argument %q", ErrInvalidConfig, fs.Arg(0))
	}

	sizeSet := sizeFromEnv
	if size != "" {
		cfg.Width, cfg.Height, err = parseSize(size)
		if err != nil {
			return Config{}, err
		}
		sizeSet = true
	}

	if cfg.File != "" && sizeSet {
		return Config{}, fmt.Errorf("%w: --file and --size are mutually exclusive", ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}

	if c.File == "" && (c.Width <= 0 || c.Height <= 0) {
		return fmt.Errorf("%w: board size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}

	if c.File == "" && !layout.FitsCells(c.Width, c.Height) {
		return fmt.Errorf("%w: board size %dx%d exceeds %d cells", ErrInvalidConfig, c.Width, c.Height, layout.MaxCells)
	}

	if c.MineProbability < 0 || c.MineProbability > 1 {
		return fmt.Errorf("%w: mine probability %v not in [0,1]", ErrInvalidConfig, c.MineProbability)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Cache {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: --cache redis needs --redis-addr", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache)
	}

	if c.CacheTTL <= 0 && c.Cache != CacheNone {
		return fmt.Errorf("%w: cache ttl must be positive", ErrInvalidConfig)
	}

	if c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative write timeout", ErrInvalidConfig)
	}

	return nil
}

// envSource looks keys up in the process environment first and the dotenv
// file second.
type envSource struct {
	file map[string]string
}

func newEnvSource(path string) (envSource, error) {
	if path == "" {
		return envSource{}, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return envSource{}, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return envSource{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return envSource{file: values}, nil
}

func (e envSource) lookup(name string) (string, bool) {
	key := envPrefix + name
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}

	v, ok := e.file[key]
	return v, ok
}

// defaultsFromEnv builds the flag defaults and reports whether the board
// size came from the environment.
func defaultsFromEnv(env envSource) (Config, bool, error) {
	cfg := Config{
		Port:            DefaultPort,
		Width:           DefaultSize,
		Height:          DefaultSize,
		MineProbability: layout.DefaultMineProbability,
		LogLevel:        "info",
		Cache:           CacheMemory,
		CacheTTL:        DefaultCacheTTL,
		RedisAddr:       DefaultRedisAddr,
		WriteTimeout:    DefaultWriteTimeout,
	}

	var err error
	if v, ok := env.lookup("PORT"); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return Config{}, false, envError("PORT", v, err)
		}
	}

	if v, ok := env.lookup("DEBUG"); ok {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return Config{}, false, envError("DEBUG", v, err)
		}
	}

	if v, ok := env.lookup("FILE"); ok {
		cfg.File = v
	}

	sizeSet := false
	if v, ok := env.lookup("SIZE"); ok && v != "" {
		if cfg.Width, cfg.Height, err = parseSize(v); err != nil {
			return Config{}, false, err
		}
		sizeSet = true
	}

	if v, ok := env.lookup("MINE_PROBABILITY"); ok {
		if cfg.MineProbability, err = strconv.ParseFloat(v, 64); err != nil {
			return Config{}, false, envError("MINE_PROBABILITY", v, err)
		}
	}

	if v, ok := env.lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if v, ok := env.lookup("LOG_DIR"); ok {
		cfg.LogDir = v
	}

	if v, ok := env.lookup("LOG_CONSOLE"); ok {
		if cfg.LogConsole, err = strconv.ParseBool(v); err != nil {
			return Config{}, false, envError("LOG_CONSOLE", v, err)
		}
	}

	if v, ok := env.lookup("CACHE"); ok {
		cfg.Cache = v
	}

	if v, ok := env.lookup("CACHE_TTL"); ok {
		if cfg.CacheTTL, err = time.ParseDuration(v); err != nil {
			return Config{}, false, envError("CACHE_TTL", v, err)
		}
	}

	if v, ok := env.lookup("REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}

	if v, ok := env.lookup("WRITE_TIMEOUT"); ok {
		if cfg.WriteTimeout, err = time.ParseDuration(v); err != nil {
			return Config{}, false, envError("WRITE_TIMEOUT", v, err)
		}
	}

	return cfg, sizeSet, nil
}

func envError(name, value string, err error) error {
	return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, envPrefix, name, value, err)
}

// parseSize parses "WIDTH,HEIGHT".
func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: size %q is not WIDTH,HEIGHT", ErrInvalidConfig, s)
	}

	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("%w: bad width in size %q", ErrInvalidConfig, s)
	}

	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("%w: bad height in size %q", ErrInvalidConfig, s)
	}

	return width, height, nil
}
