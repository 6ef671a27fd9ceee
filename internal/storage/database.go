// Package storage provides SQLite persistence for campaigns, leads and actions.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrPendingExists is returned when a lead already has an outstanding pending action
var ErrPendingExists = errors.New("lead already has a pending action")

// Database wraps the SQLite database connection
type Database struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at the given path
func Open(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps sqlite from returning SQLITE_BUSY under concurrent ticks
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{db: db}

	// Run migrations
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB for advanced operations
func (d *Database) DB() *sql.DB {
	return d.db
}

// Migrate creates all necessary tables
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			owner_id TEXT DEFAULT '',
			email TEXT DEFAULT '',
			region TEXT DEFAULT '',
			cookies TEXT DEFAULT '',
			user_agent TEXT DEFAULT '',
			session_valid INTEGER DEFAULT 1,
			limits TEXT DEFAULT '{}',
			last_used_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS proxies (
			id TEXT PRIMARY KEY,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			protocol TEXT DEFAULT 'http',
			username TEXT DEFAULT '',
			password TEXT DEFAULT '',
			region TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			issue_count INTEGER DEFAULT 0,
			issues TEXT DEFAULT '[]',
			usage_count INTEGER DEFAULT 0,
			total_assignments INTEGER DEFAULT 0,
			last_used_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS sequences (
			id TEXT PRIMARY KEY,
			owner_id TEXT DEFAULT '',
			name TEXT DEFAULT '',
			nodes TEXT NOT NULL,
			edges TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			owner_id TEXT DEFAULT '',
			name TEXT DEFAULT '',
			status TEXT DEFAULT 'draft',
			sequence_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			lead_list_ids TEXT DEFAULT '[]',
			analytics TEXT DEFAULT '{}',
			pause_reason TEXT DEFAULT '',
			started_at DATETIME,
			paused_at DATETIME,
			stopped_at DATETIME,
			completed_at DATETIME,
			last_run_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			owner_id TEXT DEFAULT '',
			list_id TEXT NOT NULL,
			campaign_id TEXT DEFAULT '',
			profile_url TEXT NOT NULL,
			email TEXT DEFAULT '',
			first_name TEXT DEFAULT '',
			last_name TEXT DEFAULT '',
			company TEXT DEFAULT '',
			position TEXT DEFAULT '',
			industry TEXT DEFAULT '',
			location TEXT DEFAULT '',
			status TEXT DEFAULT 'new',
			connection_status TEXT DEFAULT 'none',
			flags TEXT DEFAULT '{}',
			last_action_at DATETIME,
			last_action_node_id TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS campaign_actions (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			lead_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT DEFAULT 'pending',
			scheduled_for DATETIME NOT NULL,
			executed_at DATETIME,
			node_id TEXT DEFAULT '',
			retry_count INTEGER DEFAULT 0,
			last_error TEXT DEFAULT '',
			error_class TEXT DEFAULT '',
			response TEXT DEFAULT '',
			payload TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (campaign_id) REFERENCES campaigns(id),
			FOREIGN KEY (lead_id) REFERENCES leads(id)
		)`,

		`CREATE TABLE IF NOT EXISTS campaign_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			campaign_id TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			taken_at DATETIME NOT NULL,
			FOREIGN KEY (campaign_id) REFERENCES campaigns(id)
		)`,

		// Indexes for common queries
		`CREATE INDEX IF NOT EXISTS idx_proxies_region ON proxies(region, status)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_list ON leads(list_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(campaign_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_due ON campaign_actions(status, scheduled_for)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_campaign ON campaign_actions(campaign_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_lead ON campaign_actions(lead_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_actions_pending_lead ON campaign_actions(lead_id) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_campaign_stats_campaign ON campaign_stats(campaign_id, taken_at)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nQuery: %s", err, migration)
		}
	}

	return nil
}

// Transaction helper for running operations in a transaction
func (d *Database) Transaction(fn func(*sql.Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT
}

// utc normalizes times so lexical DATETIME comparisons order correctly
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

func fromJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}
