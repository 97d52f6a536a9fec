// Package config loads the bot configuration from the environment,
// with an optional .env file.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the application
type Config struct {
	BotToken string `env:"BOT_TOKEN,required"`
	AdminID  int64  `env:"ADMIN_ID"`

	// DBDriver is sqlite3 or postgres. DBPath applies to sqlite3,
	// DatabaseURL to postgres.
	DBDriver    string `env:"DB_DRIVER,default=sqlite3"`
	DBPath      string `env:"DB_PATH,default=data/asiabot.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	ProxyFile string `env:"PROXY_FILE,default=data/proxies.txt"`

	TokenRefreshHours   int `env:"TOKEN_REFRESH_HOURS,default=12"`
	BalanceCheckMinutes int `env:"BALANCE_CHECK_MINUTES,default=30"`
}

// Load reads .env when present, then decodes the environment
func Load() (*Config, error) {
	// A missing .env is fine; the environment may be set directly
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %v", err)
	}

	switch cfg.DBDriver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER is postgres")
	}

	return &cfg, nil
}

// DSN returns the connection string for the configured driver
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// IsAdmin reports whether the Telegram user is the configured admin
func (c *Config) IsAdmin(telegramID int64) bool {
	return c.AdminID != 0 && telegramID == c.AdminID
}
