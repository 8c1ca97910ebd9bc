package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS device_latest (
		device      TEXT PRIMARY KEY,
		captured_at TIMESTAMPTZ NOT NULL,
		ph          DOUBLE PRECISION NOT NULL,
		tds         DOUBLE PRECISION NOT NULL,
		temp        DOUBLE PRECISION NOT NULL,
		turbidity   DOUBLE PRECISION NOT NULL,
		status      TEXT NOT NULL,
		lat         DOUBLE PRECISION,
		lng         DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS reading_history (
		id          BIGSERIAL PRIMARY KEY,
		device      TEXT NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL,
		ph          DOUBLE PRECISION NOT NULL,
		tds         DOUBLE PRECISION NOT NULL,
		temp        DOUBLE PRECISION NOT NULL,
		turbidity   DOUBLE PRECISION NOT NULL,
		status      TEXT NOT NULL,
		lat         DOUBLE PRECISION,
		lng         DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS reading_history_device_idx ON reading_history (device, captured_at)`,
	`CREATE TABLE IF NOT EXISTS pins (
		id           TEXT PRIMARY KEY,
		device       TEXT NOT NULL,
		lat          DOUBLE PRECISION,
		lng          DOUBLE PRECISION,
		last_reading JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pins_device_idx ON pins (device, created_at)`,
}

// EnsureSchema creates the store's tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
