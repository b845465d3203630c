package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer. Timestamps are stored as unix nanoseconds.
type Store struct {
	DB *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		coin_id TEXT NOT NULL,
		alert_type TEXT NOT NULL CHECK (alert_type IN ('above', 'below')),
		price_threshold REAL NOT NULL,
		target TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_triggered INTEGER DEFAULT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (is_active);`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		coin_id TEXT NOT NULL,
		price REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_coin_ts ON price_history (coin_id, timestamp);`,
	`CREATE TABLE IF NOT EXISTS portfolios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		initial_investment REAL NOT NULL,
		current_value REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS holdings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id INTEGER NOT NULL REFERENCES portfolios (id) ON DELETE CASCADE,
		coin_id TEXT NOT NULL,
		amount REAL NOT NULL,
		coins REAL NOT NULL DEFAULT 0,
		current_price REAL NOT NULL DEFAULT 0,
		current_value REAL NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS alert_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		target TEXT NOT NULL,
		loss_threshold REAL NOT NULL,
		last_notified INTEGER DEFAULT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`,
}

// Open connects to the database at path and creates missing tables.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions from
	// tripping over "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.WithField("component", "database").Debugf("Database initialized at %s", path)
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Ping is used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// withTx runs fn in a transaction, rolling back when fn or the commit fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithField("component", "database").WithError(rbErr).Error("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
