package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDSN is used when DATABASE_URL is empty
const DefaultDSN = "data/sogreto.db"

// Driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DriverFor picks the driver from the DSN: postgres URLs go to lib/pq,
// everything else is a sqlite path.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Connect establishes a connection to the database and creates the schema
func Connect(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	driver := DriverFor(dsn)

	if driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			current_stage INTEGER NOT NULL DEFAULT 1,
			current_step INTEGER NOT NULL DEFAULT 1,
			current_day INTEGER NOT NULL DEFAULT 1,
			is_paused BOOLEAN NOT NULL DEFAULT FALSE,
			awaiting_sprouts BOOLEAN NOT NULL DEFAULT FALSE,
			daily_practice_day INTEGER NOT NULL DEFAULT 0,
			daily_practice_substep TEXT NOT NULL DEFAULT '',
			last_practice_date TEXT NOT NULL DEFAULT '',
			reminder_postponed BOOLEAN NOT NULL DEFAULT FALSE,
			postponed_until TIMESTAMP NULL,
			stage4_reminder_date TEXT NOT NULL DEFAULT '',
			stage6_reminder_date TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NULL,
			last_reminder_sent TIMESTAMP NULL,
			completed_at TIMESTAMP NULL,
			timezone TEXT NOT NULL DEFAULT 'Europe/Moscow',
			preferred_time TEXT NOT NULL DEFAULT '09:00',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	// Append-only practice log
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS user_progress (
			id ` + idColumn + `,
			user_id BIGINT NOT NULL,
			stage_id INTEGER NOT NULL,
			step_id INTEGER NOT NULL,
			day INTEGER NOT NULL DEFAULT 0,
			action TEXT NOT NULL,
			user_response TEXT NOT NULL DEFAULT '',
			completed_at TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(telegram_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create user_progress table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_progress_user ON user_progress (user_id, completed_at)`)
	if err != nil {
		return fmt.Errorf("failed to create user_progress index: %w", err)
	}

	return nil
}
