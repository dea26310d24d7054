package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SQLiteSchema mirrors the goose migrations for local sqlite runs and tests.
// Enum columns become TEXT with CHECK constraints.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS gigs (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		category_id TEXT NULL REFERENCES categories(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		price NUMERIC NOT NULL CHECK (price > 0),
		delivery_days INTEGER NOT NULL DEFAULT 3,
		revisions INTEGER NOT NULL DEFAULT 1,
		tags TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		total_orders INTEGER NOT NULL DEFAULT 0,
		average_rating NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		gig_id TEXT NOT NULL REFERENCES gigs(id) ON DELETE RESTRICT,
		buyer_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		status TEXT NOT NULL DEFAULT 'payment_pending' CHECK (status IN ('payment_pending','pending','in_progress','delivered','completed','cancelled')),
		requirements TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL,
		platform_fee NUMERIC NOT NULL,
		payment_reference TEXT NULL,
		delivery_file_url TEXT NULL,
		delivery_link TEXT NULL,
		delivery_note TEXT NULL,
		delivered_at DATETIME NULL,
		completed_at DATETIME NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		gig_id TEXT NOT NULL REFERENCES gigs(id) ON DELETE CASCADE,
		reviewer_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reviews_order_id ON reviews (order_id)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		display_name TEXT NOT NULL DEFAULT '',
		stripe_account_id TEXT NULL,
		total_earnings NUMERIC NOT NULL DEFAULT 0,
		total_orders_completed INTEGER NOT NULL DEFAULT 0,
		average_rating NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLiteSchema creates every table on a sqlite connection.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range SQLiteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
