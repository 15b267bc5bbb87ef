// Package database persists engine records in SQLite.
package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the reservation engine.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Businesses own resources and bookings. Reference data.
		`CREATE TABLE IF NOT EXISTS businesses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			currency TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			pay_later BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Resources: rooms and tables.
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			rate_minor INTEGER NOT NULL,
			pay_later BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (business_id) REFERENCES businesses(id)
		)`,

		// Bookings with optimistic-concurrency version counter.
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			requester TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			guests INTEGER NOT NULL,
			total_minor INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT,
			cancel_reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (business_id) REFERENCES businesses(id),
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,

		// Payments, 1:1 with bookings.
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			booking_id TEXT UNIQUE NOT NULL,
			amount_minor INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			intent_ref TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (booking_id) REFERENCES bookings(id)
		)`,

		// Operator queue for payment/status disagreements.
		`CREATE TABLE IF NOT EXISTS reconciliation_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			booking_status TEXT NOT NULL,
			detail TEXT,
			resolved BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_resources_business ON resources(business_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_times ON bookings(resource_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_intent ON payments(intent_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_unresolved ON reconciliation_errors(resolved)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
