package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/vigil/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS restart_ledger(
			name TEXT PRIMARY KEY,
			restart_count INTEGER NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			last_restart TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS uptime_sample(
			name TEXT PRIMARY KEY,
			captured_at TIMESTAMPTZ NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) GetLedger(ctx context.Context, name string) (store.Ledger, bool, error) {
	var led store.Ledger
	err := p.db.QueryRowContext(ctx, `
		SELECT name, restart_count, window_start, last_restart, updated_at
		FROM restart_ledger WHERE name=$1;`, name).
		Scan(&led.Name, &led.RestartCount, &led.WindowStart, &led.LastRestart, &led.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Ledger{}, false, nil
	}
	if err != nil {
		return store.Ledger{}, false, err
	}
	return led, true, nil
}

func (p *DB) PutLedger(ctx context.Context, led store.Ledger) error {
	led.UpdatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO restart_ledger(name, restart_count, window_start, last_restart, updated_at)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT(name) DO UPDATE SET
			restart_count=excluded.restart_count,
			window_start=excluded.window_start,
			last_restart=excluded.last_restart,
			updated_at=excluded.updated_at;`,
		led.Name, led.RestartCount, led.WindowStart.UTC(), led.LastRestart.UTC(), led.UpdatedAt)
	return err
}

func (p *DB) GetUptimeSample(ctx context.Context, name string) (store.UptimeSample, bool, error) {
	var us store.UptimeSample
	err := p.db.QueryRowContext(ctx, `
		SELECT name, captured_at, uptime_seconds
		FROM uptime_sample WHERE name=$1;`, name).
		Scan(&us.Name, &us.CapturedAt, &us.UptimeSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UptimeSample{}, false, nil
	}
	if err != nil {
		return store.UptimeSample{}, false, err
	}
	return us, true, nil
}

func (p *DB) PutUptimeSample(ctx context.Context, us store.UptimeSample) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO uptime_sample(name, captured_at, uptime_seconds)
		VALUES($1, $2, $3)
		ON CONFLICT(name) DO UPDATE SET
			captured_at=excluded.captured_at,
			uptime_seconds=excluded.uptime_seconds;`,
		us.Name, us.CapturedAt.UTC(), us.UptimeSeconds)
	return err
}
