package graft

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables read by LoadConfig.
const (
	EnvLogLevel          = "GRAFT_LOG_LEVEL"
	EnvDevelopment       = "GRAFT_DEVELOPMENT"
	EnvAllowNullBindings = "GRAFT_ALLOW_NULL_BINDINGS"
	EnvValidateNonLazy   = "GRAFT_VALIDATE_NON_LAZY"
)

// Config holds the container settings that can come from the environment.
type Config struct {
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel    string
	Development bool

	AllowNullBindings bool

	// ValidateOnResolveNonLazy makes ResolveNonLazy validate every binding
	// before instantiating anything.
	ValidateOnResolveNonLazy bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{LogLevel: "info"}
}

// LoadConfig reads .env files into the environment, then builds a Config from
// GRAFT_* variables. Without files, a missing .env is not an error. Variables
// already set take precedence over the files.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		// Non-fatal: .env may not exist in production
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Wrap(err, "load env files")
	}

	cfg := DefaultConfig()
	cfg.LogLevel = env(EnvLogLevel, cfg.LogLevel)

	var err error

	if cfg.Development, err = envBool(EnvDevelopment, cfg.Development); err != nil {
		return Config{}, err
	}

	if cfg.AllowNullBindings, err = envBool(EnvAllowNullBindings, cfg.AllowNullBindings); err != nil {
		return Config{}, err
	}

	if cfg.ValidateOnResolveNonLazy, err = envBool(EnvValidateNonLazy, cfg.ValidateOnResolveNonLazy); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// NewLogger builds a zap logger for the configured level, using zap's
// development preset when Development is set.
func (cfg Config) NewLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvLogLevel)
		}

		level = parsed
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// WithConfig applies cfg. If the logger cannot be built the current logger
// is kept and the failure is logged to it.
func WithConfig(cfg Config) Option {
	return func(c *Container) {
		c.allowNullBindings = cfg.AllowNullBindings
		c.validateNonLazy = cfg.ValidateOnResolveNonLazy

		logger, err := cfg.NewLogger()
		if err != nil {
			c.logger.Warn("keeping previous logger", zap.Error(err))

			return
		}

		c.logger = logger
	}
}

// NewFromEnv creates a container configured by LoadConfig(files...). opts are
// applied after the loaded configuration.
func NewFromEnv(files []string, opts ...Option) (*Container, error) {
	cfg, err := LoadConfig(files...)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithLogger(logger),
		WithAllowNullBindings(cfg.AllowNullBindings),
		WithValidateOnResolveNonLazy(cfg.ValidateOnResolveNonLazy),
	}

	return New(append(base, opts...)...), nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, errors.Wrapf(err, "invalid %s", key)
	}

	return b, nil
}
