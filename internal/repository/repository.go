package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// Repos is the Postgres-backed durable store, keyed by device.
type Repos struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{db: db} }

type readingRow struct {
	Device string `db:"device"`
	domain.Reading
}

type pinRow struct {
	ID          string          `db:"id"`
	Device      string          `db:"device"`
	Lat         sql.NullFloat64 `db:"lat"`
	Lng         sql.NullFloat64 `db:"lng"`
	LastReading string          `db:"last_reading"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r *Repos) WriteLatest(ctx context.Context, device string, rd domain.Reading) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO device_latest (device, captured_at, ph, tds, temp, turbidity, status, lat, lng)
		VALUES (:device, :captured_at, :ph, :tds, :temp, :turbidity, :status, :lat, :lng)
		ON CONFLICT (device) DO UPDATE SET
			captured_at = EXCLUDED.captured_at,
			ph = EXCLUDED.ph,
			tds = EXCLUDED.tds,
			temp = EXCLUDED.temp,
			turbidity = EXCLUDED.turbidity,
			status = EXCLUDED.status,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng
		WHERE device_latest.captured_at <= EXCLUDED.captured_at`,
		readingRow{Device: device, Reading: rd})
	if err != nil {
		return fmt.Errorf("failed to write latest reading: %w", err)
	}
	return nil
}

func (r *Repos) AppendHistory(ctx context.Context, device string, rd domain.Reading) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO reading_history (device, captured_at, ph, tds, temp, turbidity, status, lat, lng)
		VALUES (:device, :captured_at, :ph, :tds, :temp, :turbidity, :status, :lat, :lng)`,
		readingRow{Device: device, Reading: rd})
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

func (r *Repos) ListPins(ctx context.Context, device string) ([]domain.Pin, error) {
	var rows []pinRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, device, lat, lng, last_reading::text AS last_reading, created_at, updated_at
		FROM pins WHERE device = $1 ORDER BY created_at, id`, device)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}

	out := make([]domain.Pin, 0, len(rows))
	for _, row := range rows {
		if !row.Lat.Valid || !row.Lng.Valid {
			continue
		}
		p := domain.Pin{
			ID:        row.ID,
			Lat:       row.Lat.Float64,
			Lng:       row.Lng.Float64,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if err := json.Unmarshal([]byte(row.LastReading), &p.LastReading); err != nil {
			return nil, fmt.Errorf("failed to decode last reading of pin %s: %w", row.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// CreatePin inserts p unless a row with its id already exists; an update
// that raced ahead of the create already holds newer data.
func (r *Repos) CreatePin(ctx context.Context, device string, p domain.Pin) error {
	row, err := toPinRow(device, p)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO pins (id, device, lat, lng, last_reading, created_at, updated_at)
		VALUES (:id, :device, :lat, :lng, CAST(:last_reading AS JSONB), :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING`, row)
	if err != nil {
		return fmt.Errorf("failed to create pin: %w", err)
	}
	return nil
}

// UpdatePin upserts p, never replacing a row with a newer updated_at.
func (r *Repos) UpdatePin(ctx context.Context, device string, p domain.Pin) error {
	row, err := toPinRow(device, p)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO pins (id, device, lat, lng, last_reading, created_at, updated_at)
		VALUES (:id, :device, :lat, :lng, CAST(:last_reading AS JSONB), :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			last_reading = EXCLUDED.last_reading,
			updated_at = EXCLUDED.updated_at
		WHERE pins.updated_at <= EXCLUDED.updated_at`, row)
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	return nil
}

func (r *Repos) DeleteDevice(ctx context.Context, device string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM device_latest WHERE device = $1`,
		`DELETE FROM reading_history WHERE device = $1`,
		`DELETE FROM pins WHERE device = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, device); err != nil {
			return fmt.Errorf("failed to delete device %s: %w", device, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func toPinRow(device string, p domain.Pin) (pinRow, error) {
	b, err := json.Marshal(p.LastReading)
	if err != nil {
		return pinRow{}, fmt.Errorf("failed to encode last reading: %w", err)
	}
	return pinRow{
		ID:          p.ID,
		Device:      device,
		Lat:         sql.NullFloat64{Float64: p.Lat, Valid: true},
		Lng:         sql.NullFloat64{Float64: p.Lng, Valid: true},
		LastReading: string(b),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}
