package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // per-request context deadline
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"` // trace|debug|info|warn|error
	Format   string `yaml:"format"`                // json|console
	Sampling bool   `yaml:"sampling"`              // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // entitlement cache TTL
}

type PaystackConfig struct {
	SecretKey    string `yaml:"secret_key" env:"PAYSTACK_SECRET_KEY"`
	WebhookPath  string `yaml:"webhook_path"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
}

type RateLimitConfig struct {
	WebhookPerMinute int `yaml:"webhook_per_minute"` // negative disables
}

type SchedulerConfig struct {
	StaleCheckInterval time.Duration `yaml:"stale_check_interval"`
	StaleAfter         time.Duration `yaml:"stale_after"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Paystack  PaystackConfig  `yaml:"paystack"`
	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, then overlays secrets from the
// environment (a .env file next to the binary is loaded first if present).
// A missing YAML file is tolerated so the service can run from env alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Paystack.WebhookPath == "" {
		cfg.Paystack.WebhookPath = "/webhooks/paystack"
	}
	if cfg.Paystack.MaxBodyBytes <= 0 {
		cfg.Paystack.MaxBodyBytes = 1 << 20
	}
	if cfg.RateLimit.WebhookPerMinute == 0 {
		cfg.RateLimit.WebhookPerMinute = 300
	}
	if cfg.Scheduler.StaleCheckInterval <= 0 {
		cfg.Scheduler.StaleCheckInterval = time.Minute
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 5 * time.Minute
	}
}

// Validate performs the minimal checks needed to start serving.
func (c *Config) Validate() error {
	if c.Paystack.SecretKey == "" {
		return errors.New("paystack.secret_key is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}
