package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmobrien1/mdraft/internal/media"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port          int               `yaml:"port"`
	BaseURL       string            `yaml:"base_url"`
	APIKeys       map[string]string `yaml:"api_keys"` // bearer key -> account id
	VisitorSecret string            `yaml:"visitor_secret"`
	VisitorTTL    time.Duration     `yaml:"visitor_ttl"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Root string `yaml:"root"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

type ConvertConfig struct {
	Workers          int              `yaml:"workers"`
	QueuePollTimeout time.Duration    `yaml:"queue_poll_timeout"`
	MaxAttempts      int              `yaml:"max_attempts"`
	BaseDelay        time.Duration    `yaml:"base_delay"`
	MaxDelay         time.Duration    `yaml:"max_delay"`
	EnqueueRetries   int              `yaml:"enqueue_retries"`
	Limits           media.SizeLimits `yaml:"limits"`
	RateLimit        RateLimitConfig  `yaml:"rate_limit"`
}

type WebhookConfig struct {
	Secret      string        `yaml:"secret"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type RetentionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Convert   ConvertConfig   `yaml:"convert"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Retention RetentionConfig `yaml:"retention"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.VisitorSecret == "" && !dev {
		return nil, errors.New("server.visitor_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.VisitorTTL <= 0 {
		cfg.Server.VisitorTTL = 30 * 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "data/blobs"
	}
	if cfg.Convert.Workers <= 0 {
		cfg.Convert.Workers = 4
	}
	if cfg.Convert.QueuePollTimeout <= 0 {
		cfg.Convert.QueuePollTimeout = 2 * time.Second
	}
	if cfg.Convert.MaxAttempts <= 0 {
		cfg.Convert.MaxAttempts = 3
	}
	if cfg.Convert.BaseDelay <= 0 {
		cfg.Convert.BaseDelay = time.Second
	}
	if cfg.Convert.MaxDelay <= 0 {
		cfg.Convert.MaxDelay = 30 * time.Second
	}
	if cfg.Convert.EnqueueRetries <= 0 {
		cfg.Convert.EnqueueRetries = 3
	}
	if cfg.Convert.RateLimit.PerMinute <= 0 {
		cfg.Convert.RateLimit.PerMinute = 30
	}
	cfg.Convert.Limits = cfg.Convert.Limits.Normalize()

	if cfg.Webhook.Timeout <= 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Webhook.MaxAttempts <= 0 {
		cfg.Webhook.MaxAttempts = 5
	}
	if cfg.Webhook.BaseDelay <= 0 {
		cfg.Webhook.BaseDelay = time.Second
	}
	if cfg.Webhook.MaxDelay <= 0 {
		cfg.Webhook.MaxDelay = 10 * time.Second
	}

	if cfg.Retention.TTL <= 0 {
		cfg.Retention.TTL = 7 * 24 * time.Hour
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = time.Hour
	}
}
