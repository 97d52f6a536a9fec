package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/asiabot/internal/asiacell"
	"github.com/example/asiabot/internal/bot"
	"github.com/example/asiabot/internal/config"
	"github.com/example/asiabot/internal/database"
	"github.com/example/asiabot/internal/scheduler"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.DBDriver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logrus.Fatalf("Failed to create data directory: %v", err)
		}
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	client := asiacell.New(cfg.ProxyFile)

	b, err := bot.New(cfg, db, client)
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(
		database.NewAccountRepository(db),
		client,
		b,
		cfg.TokenRefreshHours,
		cfg.BalanceCheckMinutes,
	)
	sched.Start()
	defer sched.Stop()

	// Stop on Ctrl+C or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	logrus.Info("Bot started. Press Ctrl+C to stop.")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatalf("Bot error: %v", err)
	}
	logrus.Info("Bot stopped successfully")
}
