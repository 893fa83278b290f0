package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvDev   = "dev"
	EnvProd  = "prod"
	EnvLocal = "local"
)

type Config struct {
	Env      string `env:"ENV" env-default:"dev"`
	LogLevel string `env:"LOG_LEVEL" env-default:""`

	HTTPAddr             string   `env:"HTTP_ADDR" env-default:":8080"`
	DatabaseDriver       string   `env:"DATABASE_DRIVER" env-default:"postgres"`
	DatabaseURL          string   `env:"DATABASE_URL" env-required:"true"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`

	JWTSecret string `env:"JWT_SECRET" env-required:"true"`

	// Timezone drives calendar arithmetic for recurring reminders.
	Timezone string `env:"REMINDER_TIMEZONE" env-default:"UTC"`

	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

type SchedulerConfig struct {
	Enabled     bool          `env:"SCHEDULER_ENABLED" env-default:"true"`
	Cadence     time.Duration `env:"SCHEDULER_CADENCE" env-default:"60s"`
	StartDelay  time.Duration `env:"SCHEDULER_START_DELAY" env-default:"2s"`
	PassTimeout time.Duration `env:"SCHEDULER_PASS_TIMEOUT" env-default:"30s"`
}

type NotifyConfig struct {
	InApp bool `env:"NOTIFY_IN_APP" env-default:"true"`

	// Telegram is an operator feed: all users' reminders go to one chat.
	TelegramToken      string `env:"TELEGRAM_TOKEN"`
	TelegramChatID     int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramRatePerSec int    `env:"TELEGRAM_RATE_PER_SEC" env-default:"1"`
}

func (c NotifyConfig) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	switch c.Env {
	case EnvDev, EnvProd, EnvLocal:
	default:
		return Config{}, fmt.Errorf("unknown env: %q", c.Env)
	}

	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER: %q", c.DatabaseDriver)
	}

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins

	if c.Scheduler.Cadence <= 0 {
		return Config{}, errors.New("SCHEDULER_CADENCE must be positive")
	}
	if c.Scheduler.StartDelay < 0 {
		c.Scheduler.StartDelay = 0
	}
	c.Timezone = strings.TrimSpace(c.Timezone)
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid REMINDER_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.Notify.TelegramRatePerSec <= 0 {
		c.Notify.TelegramRatePerSec = 1
	}
	return c, nil
}

// Location resolves Timezone. Load has already rejected unknown zones; a
// zero Config maps to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}
