package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Empty means the in-process rate-limit store; set for multi-instance
	// deployments.
	RedisURL string `env:"REDIS_URL"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret     string `env:"JWT_SECRET,required"    validate:"required,min=32"`
	RateKeySalt   string `env:"RATE_KEY_SALT,required" validate:"required,min=16"`
	RateLimit     int    `env:"RATE_LIMIT" envDefault:"10" validate:"min=1"`
	RateWindowMin int    `env:"RATE_WINDOW_MIN" envDefault:"60" validate:"min=1"`

	GenerationURL     string `env:"GENERATION_URL,required" validate:"required,url"`
	GenerationAPIKey  string `env:"GENERATION_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	GenerationModel   string `env:"GENERATION_MODEL" envDefault:"portrait-v2"`
	GenerationTimeout int    `env:"GENERATION_TIMEOUT_SEC" envDefault:"60" validate:"min=1,max=600"`

	RetryMax        int `env:"RETRY_MAX" envDefault:"3" validate:"min=0,max=10"`
	RetryBaseMS     int `env:"RETRY_BASE_MS" envDefault:"1000" validate:"min=1"`
	RetryTimeoutSec int `env:"RETRY_TIMEOUT_SEC" envDefault:"60" validate:"min=1"`

	SweepIntervalSec int `env:"SWEEP_INTERVAL_SEC" envDefault:"60" validate:"min=1"`
	StaleAfterMin    int `env:"STALE_AFTER_MIN" envDefault:"15" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowMin) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}
