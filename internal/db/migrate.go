package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('citizen', 'admin')),
		city TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		pincode TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT true,
		reward_points INTEGER NOT NULL DEFAULT 0 CHECK (reward_points >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`,
	`CREATE INDEX IF NOT EXISTS users_city_lower_idx ON users (LOWER(city))`,
	`CREATE TABLE IF NOT EXISTS admin_secret_codes (
		id UUID PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		city TEXT NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS admin_requests (
		id UUID PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		city TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		pincode TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS admin_requests_city_status_idx ON admin_requests (LOWER(city), status)`,
	`CREATE TABLE IF NOT EXISTS waste_reports (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		city TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('open', 'in_progress', 'collected')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS waste_reports_city_lower_idx ON waste_reports (LOWER(city))`,
}

// Migrate applies the schema. Statements are idempotent, so running at every
// startup is fine.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
