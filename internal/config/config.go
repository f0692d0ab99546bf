// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PayRateLimit   int           `yaml:"pay_rate_limit"` // pay calls per buyer per window
	PayRateWindow  time.Duration `yaml:"pay_rate_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymentConfig struct {
	Razorpay struct {
		KeyID         string `yaml:"key_id"`
		KeySecret     string `yaml:"key_secret"`
		WebhookSecret string `yaml:"webhook_secret"`
		Currency      string `yaml:"currency"`
		Sandbox       bool   `yaml:"sandbox"` // use the in-memory gateway
	} `yaml:"razorpay"`
}

type TierConfig struct {
	MaxPrice int64 `yaml:"max_price"` // 0 = unbounded
	MaxDays  int   `yaml:"max_days"`
}

type InstallmentConfig struct {
	Timezone  string       `yaml:"timezone"` // calendar used for the one-payment-per-day rule
	MinDays   int          `yaml:"min_days"`
	MinAmount int64        `yaml:"min_amount"`
	Tiers     []TierConfig `yaml:"tiers"`
}

type CommissionConfig struct {
	DefaultPercent   float64 `yaml:"default_percent"`
	AvailablePercent float64 `yaml:"available_percent"` // rest is locked
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	BatchSize         int           `yaml:"batch_size"`
}

type SecurityConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type NotifyConfig struct {
	Language string `yaml:"language"` // locale catalogue for ops messages
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
}

type WorkersConfig struct {
	Notifications int `yaml:"notifications"`
	QueueSize     int `yaml:"queue_size"`
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Payment     PaymentConfig     `yaml:"payment"`
	Installment InstallmentConfig `yaml:"installment"`
	Commission  CommissionConfig  `yaml:"commission"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Security    SecurityConfig    `yaml:"security"`
	Notify      NotifyConfig      `yaml:"notify"`
	Workers     WorkersConfig     `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies env overrides and defaults, and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret is required")
	}
	if !cfg.Payment.Razorpay.Sandbox {
		rp := cfg.Payment.Razorpay
		if rp.KeyID == "" || rp.KeySecret == "" || rp.WebhookSecret == "" {
			return nil, errors.New("payment.razorpay key_id, key_secret and webhook_secret are required")
		}
	}
	if _, err := time.LoadLocation(cfg.Installment.Timezone); err != nil {
		return nil, fmt.Errorf("installment.timezone: %w", err)
	}
	if cfg.Commission.AvailablePercent < 0 || cfg.Commission.AvailablePercent > 100 {
		return nil, errors.New("commission.available_percent must be within 0-100")
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEmpty(&cfg.Database.URL, "DATABASE_URL")
	setIfEmpty(&cfg.Redis.URL, "REDIS_URL")
	setIfEmpty(&cfg.Payment.Razorpay.KeyID, "RAZORPAY_KEY_ID")
	setIfEmpty(&cfg.Payment.Razorpay.KeySecret, "RAZORPAY_KEY_SECRET")
	setIfEmpty(&cfg.Payment.Razorpay.WebhookSecret, "RAZORPAY_WEBHOOK_SECRET")
	setIfEmpty(&cfg.Security.JWTSecret, "JWT_SECRET")
	setIfEmpty(&cfg.Notify.Telegram.Token, "TELEGRAM_TOKEN")
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.PayRateLimit <= 0 {
		cfg.HTTP.PayRateLimit = 10
	}
	if cfg.HTTP.PayRateWindow <= 0 {
		cfg.HTTP.PayRateWindow = time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 20
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Payment.Razorpay.Currency == "" {
		cfg.Payment.Razorpay.Currency = "INR"
	}
	if cfg.Installment.Timezone == "" {
		cfg.Installment.Timezone = "Asia/Kolkata"
	}
	if cfg.Installment.MinDays <= 0 {
		cfg.Installment.MinDays = 5
	}
	if cfg.Installment.MinAmount <= 0 {
		cfg.Installment.MinAmount = 50
	}
	if len(cfg.Installment.Tiers) == 0 {
		cfg.Installment.Tiers = []TierConfig{
			{MaxPrice: 10000, MaxDays: 30},
			{MaxPrice: 50000, MaxDays: 90},
			{MaxPrice: 0, MaxDays: 180},
		}
	}
	if cfg.Commission.DefaultPercent <= 0 {
		cfg.Commission.DefaultPercent = 10
	}
	if cfg.Commission.AvailablePercent == 0 {
		cfg.Commission.AvailablePercent = 90
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 5 * time.Minute
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 15 * time.Minute
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Notify.Language == "" {
		cfg.Notify.Language = "en"
	}
	if cfg.Workers.Notifications <= 0 {
		cfg.Workers.Notifications = 4
	}
	if cfg.Workers.QueueSize <= 0 {
		cfg.Workers.QueueSize = 256
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
