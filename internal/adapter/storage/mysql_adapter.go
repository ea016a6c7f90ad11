package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id VARCHAR(64) PRIMARY KEY,
		tier_name VARCHAR(64) NOT NULL,
		monthly_grant_limit INT NOT NULL DEFAULT 0,
		access_duration_days INT NOT NULL DEFAULT 0,
		delivery_fee_waived BOOLEAN NOT NULL DEFAULT FALSE,
		can_access_restricted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id VARCHAR(64) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		enrollment_start_unix BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		line1 VARCHAR(255) NOT NULL,
		city VARCHAR(128) NOT NULL,
		postal_code VARCHAR(32) NOT NULL,
		country VARCHAR(64) NOT NULL,
		INDEX idx_addresses_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS titles (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		author VARCHAR(255) NOT NULL,
		price_cents BIGINT NOT NULL,
		restricted BOOLEAN NOT NULL DEFAULT FALSE,
		content_key VARCHAR(255) NOT NULL DEFAULT '',
		cover_key VARCHAR(255) NOT NULL DEFAULT '',
		copies_available INT NOT NULL DEFAULT 0,
		availability_status VARCHAR(16) NOT NULL,
		created_unix BIGINT NOT NULL,
		updated_unix BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		address_id VARCHAR(64) NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		delivery_fee_cents BIGINT NOT NULL,
		total_cents BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		delivered_unix BIGINT NULL,
		return_reason VARCHAR(1024) NOT NULL DEFAULT '',
		refund_account_name VARCHAR(255) NOT NULL DEFAULT '',
		refund_bank_name VARCHAR(255) NOT NULL DEFAULT '',
		refund_account_number VARCHAR(64) NOT NULL DEFAULT '',
		refund_routing_code VARCHAR(64) NOT NULL DEFAULT '',
		refund_submitted_unix BIGINT NULL,
		stock_released_unix BIGINT NULL,
		access_granted_unix BIGINT NULL,
		updated_by VARCHAR(64) NOT NULL DEFAULT '',
		created_unix BIGINT NOT NULL,
		updated_unix BIGINT NOT NULL,
		INDEX idx_orders_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id VARCHAR(64) PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		position INT NOT NULL,
		title_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		unit_price_cents BIGINT NOT NULL,
		INDEX idx_items_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS entitlements (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		title_id VARCHAR(64) NOT NULL,
		order_id VARCHAR(64) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		provenance VARCHAR(16) NOT NULL,
		granted_unix BIGINT NOT NULL,
		expires_unix BIGINT NULL,
		progress_cursor VARCHAR(255) NOT NULL DEFAULT '',
		bookmarks TEXT NOT NULL,
		updated_unix BIGINT NOT NULL,
		INDEX idx_entitlements_pair (user_id, title_id, granted_unix),
		INDEX idx_entitlements_expiry (status, expires_unix)
	)`,
}

// NewMySQLAdapter wraps a MySQL pool. The DSN should carry parseTime=true
// and clientFoundRows=true so conditional updates report matched rows.
func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, schema: mysqlSchema}
}

// OpenMySQL opens and pings a MySQL pool.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}
