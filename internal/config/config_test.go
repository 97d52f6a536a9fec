package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "123:abc" {
		t.Fatalf("unexpected token %q", cfg.BotToken)
	}
	if cfg.DBDriver != "sqlite3" || cfg.DBPath != "data/asiabot.db" {
		t.Fatalf("unexpected database defaults: %+v", cfg)
	}
	if cfg.TokenRefreshHours != 12 || cfg.BalanceCheckMinutes != 30 {
		t.Fatalf("unexpected interval defaults: %+v", cfg)
	}
	if cfg.DSN() != "data/asiabot.db" {
		t.Fatalf("unexpected DSN %q", cfg.DSN())
	}
}

func TestLoadPostgresNeedsURL(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DB_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/asiabot?sslmode=disable")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DSN() != "postgres://localhost/asiabot?sslmode=disable" {
		t.Fatalf("unexpected DSN %q", cfg.DSN())
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{AdminID: 42}
	if !cfg.IsAdmin(42) {
		t.Fatal("expected admin match")
	}
	if cfg.IsAdmin(7) {
		t.Fatal("expected non-admin")
	}

	// No configured admin means nobody is one
	none := &Config{}
	if none.IsAdmin(0) {
		t.Fatal("zero AdminID must not make user 0 an admin")
	}
}
