package database

import (
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

var DB *sql.DB

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		coin_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		target REAL NOT NULL,
		direction TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS alerts_chat_id ON alerts (chat_id);`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		due_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS reminders_due_at ON reminders (due_at);`,
	`CREATE TABLE IF NOT EXISTS first_posts (
		chat_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		chain TEXT NOT NULL,
		symbol TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		price_usd REAL NOT NULL,
		posted_at INTEGER NOT NULL,
		PRIMARY KEY (chat_id, address)
	);`,
	`CREATE TABLE IF NOT EXISTS queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		query TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`,
}

// InitDB opens the sqlite database at dbPath and creates missing tables. ":memory:" is
// accepted for tests.
func InitDB(dbPath string) error {
	var err error
	DB, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	// sqlite serializes writers, and every connection to ":memory:" is a separate database
	DB.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err = DB.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to create schema")
		}
	}

	log.Debug("Database initialized successfully.")
	return nil
}

func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
