package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		tier_name TEXT NOT NULL,
		monthly_grant_limit INTEGER NOT NULL DEFAULT 0,
		access_duration_days INTEGER NOT NULL DEFAULT 0,
		delivery_fee_waived BOOLEAN NOT NULL DEFAULT 0,
		can_access_restricted BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		enrollment_start_unix INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		line1 TEXT NOT NULL,
		city TEXT NOT NULL,
		postal_code TEXT NOT NULL,
		country TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_addresses_user ON addresses(user_id)`,
	`CREATE TABLE IF NOT EXISTS titles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		author TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		restricted BOOLEAN NOT NULL DEFAULT 0,
		content_key TEXT NOT NULL DEFAULT '',
		cover_key TEXT NOT NULL DEFAULT '',
		copies_available INTEGER NOT NULL DEFAULT 0 CHECK (copies_available >= 0),
		availability_status TEXT NOT NULL,
		created_unix INTEGER NOT NULL,
		updated_unix INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		address_id TEXT NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		delivery_fee_cents INTEGER NOT NULL,
		total_cents INTEGER NOT NULL,
		status TEXT NOT NULL,
		delivered_unix INTEGER,
		return_reason TEXT NOT NULL DEFAULT '',
		refund_account_name TEXT NOT NULL DEFAULT '',
		refund_bank_name TEXT NOT NULL DEFAULT '',
		refund_account_number TEXT NOT NULL DEFAULT '',
		refund_routing_code TEXT NOT NULL DEFAULT '',
		refund_submitted_unix INTEGER,
		stock_released_unix INTEGER,
		access_granted_unix INTEGER,
		updated_by TEXT NOT NULL DEFAULT '',
		created_unix INTEGER NOT NULL,
		updated_unix INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		title_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price_cents INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id)`,
	`CREATE TABLE IF NOT EXISTS entitlements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title_id TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		provenance TEXT NOT NULL,
		granted_unix INTEGER NOT NULL,
		expires_unix INTEGER,
		progress_cursor TEXT NOT NULL DEFAULT '',
		bookmarks TEXT NOT NULL,
		updated_unix INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entitlements_pair ON entitlements(user_id, title_id, granted_unix)`,
	`CREATE INDEX IF NOT EXISTS idx_entitlements_expiry ON entitlements(status, expires_unix)`,
}

// NewSQLiteAdapter wraps a SQLite handle opened with OpenSQLite.
func NewSQLiteAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, schema: sqliteSchema}
}

// OpenSQLite opens a pure-Go SQLite database. SQLite allows a single writer,
// so the pool is pinned to one connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}
