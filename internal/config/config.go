// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string        `yaml:"port" env:"PANELPOINTS_PORT"`
	DBPath          string        `yaml:"db_path" env:"PANELPOINTS_DB_PATH"`
	LogLevel        string        `yaml:"log_level" env:"PANELPOINTS_LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"PANELPOINTS_LOG_FORMAT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PANELPOINTS_SHUTDOWN_TIMEOUT"`

	JWTSecret      string   `yaml:"jwt_secret" env:"PANELPOINTS_JWT_SECRET"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"PANELPOINTS_ALLOWED_ORIGINS" envSeparator:","`

	RedisURL        string        `yaml:"redis_url" env:"REDIS_URL"`
	RateLimit       int           `yaml:"rate_limit" env:"PANELPOINTS_RATE_LIMIT"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window" env:"PANELPOINTS_RATE_LIMIT_WINDOW"`

	LeaderboardLimit int           `yaml:"leaderboard_limit" env:"PANELPOINTS_LEADERBOARD_LIMIT"`
	StaleRedemption  time.Duration `yaml:"stale_redemption" env:"PANELPOINTS_STALE_REDEMPTION"`
	MetricsEnabled   bool          `yaml:"metrics_enabled" env:"PANELPOINTS_METRICS_ENABLED"`

	Backup Backup `yaml:"backup"`
}

// Backup configures encrypted snapshots to S3-compatible storage. Backups
// are disabled unless a bucket and credentials are set.
type Backup struct {
	Endpoint   string        `yaml:"endpoint" env:"PANELPOINTS_BACKUP_ENDPOINT"`
	Bucket     string        `yaml:"bucket" env:"PANELPOINTS_BACKUP_BUCKET"`
	Region     string        `yaml:"region" env:"PANELPOINTS_BACKUP_REGION"`
	Prefix     string        `yaml:"prefix" env:"PANELPOINTS_BACKUP_PREFIX"`
	AccessKey  string        `yaml:"access_key" env:"PANELPOINTS_BACKUP_ACCESS_KEY"`
	SecretKey  string        `yaml:"secret_key" env:"PANELPOINTS_BACKUP_SECRET_KEY"`
	Passphrase string        `yaml:"passphrase" env:"PANELPOINTS_BACKUP_PASSPHRASE"`
	Retention  time.Duration `yaml:"retention" env:"PANELPOINTS_BACKUP_RETENTION"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Port:             "8080",
		DBPath:           "panelpoints.db",
		LogLevel:         "info",
		LogFormat:        "text",
		ShutdownTimeout:  10 * time.Second,
		RateLimit:        30,
		RateLimitWindow:  time.Minute,
		LeaderboardLimit: 10,
		StaleRedemption:  15 * time.Minute,
		MetricsEnabled:   true,
		Backup: Backup{
			Region:    "us-east-1",
			Prefix:    "panelpoints",
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// Load overlays the YAML file at path (skipped when path is empty) and then
// the environment onto the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate_limit and rate_limit_window must be positive"))
	} else if c.RateLimitWindow < time.Millisecond {
		errs = append(errs, fmt.Errorf("rate_limit_window must be at least 1ms, got %v", c.RateLimitWindow))
	}
	if c.LeaderboardLimit < 0 {
		errs = append(errs, errors.New("leaderboard_limit must be >= 0"))
	}
	if c.Backup.Retention <= 0 {
		errs = append(errs, errors.New("backup.retention must be positive"))
	}
	return errors.Join(errs...)
}

type contextKey struct{}

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the config stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}
