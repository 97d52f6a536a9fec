package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/sqlite3/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Connect opens the database, runs pending migrations and seeds the
// default Free plan. Supported drivers are sqlite3 and postgres.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if driver == "sqlite3" {
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
		}
	}

	if err := migrateUp(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	if err := seedDefaultPlan(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// migrateUp applies the embedded migrations for the given driver.
func migrateUp(db *sqlx.DB, driver string) error {
	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %v", err)
	}

	var m *migrate.Migrate
	switch driver {
	case "sqlite3":
		instance, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to prepare sqlite migrations: %v", err)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite3", instance)
		if err != nil {
			return fmt.Errorf("failed to create migrator: %v", err)
		}
	case "postgres":
		instance, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
		if err != nil {
			return fmt.Errorf("failed to prepare postgres migrations: %v", err)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", instance)
		if err != nil {
			return fmt.Errorf("failed to create migrator: %v", err)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", driver)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %v", err)
	}

	version, _, _ := m.Version()
	logrus.WithField("version", version).Info("database schema is up to date")
	return nil
}

// seedDefaultPlan inserts the Free plan on a fresh database.
func seedDefaultPlan(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM plans"); err != nil {
		return fmt.Errorf("failed to count plans: %v", err)
	}
	if count > 0 {
		return nil
	}

	logrus.Info("seeding default Free plan")
	_, err := db.Exec(db.Rebind(
		"INSERT INTO plans (name, price, max_accounts, description, duration_days) VALUES (?, ?, ?, ?, ?)"),
		"Free", 0.0, 1, "Free plan", 30)
	if err != nil {
		return fmt.Errorf("failed to seed default plan: %v", err)
	}
	return nil
}
