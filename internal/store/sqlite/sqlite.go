package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/vigil/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for
// in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single connection: the ledger is tiny and SQLite prefers it
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS restart_ledger(
			name TEXT PRIMARY KEY,
			restart_count INTEGER NOT NULL,
			window_start TIMESTAMP NOT NULL,
			last_restart TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS uptime_sample(
			name TEXT PRIMARY KEY,
			captured_at TIMESTAMP NOT NULL,
			uptime_seconds INTEGER NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) GetLedger(ctx context.Context, name string) (store.Ledger, bool, error) {
	var led store.Ledger
	err := s.db.QueryRowContext(ctx, `
		SELECT name, restart_count, window_start, last_restart, updated_at
		FROM restart_ledger WHERE name=?;`, name).
		Scan(&led.Name, &led.RestartCount, &led.WindowStart, &led.LastRestart, &led.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Ledger{}, false, nil
	}
	if err != nil {
		return store.Ledger{}, false, err
	}
	return led, true, nil
}

func (s *DB) PutLedger(ctx context.Context, led store.Ledger) error {
	led.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restart_ledger(name, restart_count, window_start, last_restart, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			restart_count=excluded.restart_count,
			window_start=excluded.window_start,
			last_restart=excluded.last_restart,
			updated_at=excluded.updated_at;`,
		led.Name, led.RestartCount, led.WindowStart.UTC(), led.LastRestart.UTC(), led.UpdatedAt)
	return err
}

func (s *DB) GetUptimeSample(ctx context.Context, name string) (store.UptimeSample, bool, error) {
	var us store.UptimeSample
	err := s.db.QueryRowContext(ctx, `
		SELECT name, captured_at, uptime_seconds
		FROM uptime_sample WHERE name=?;`, name).
		Scan(&us.Name, &us.CapturedAt, &us.UptimeSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UptimeSample{}, false, nil
	}
	if err != nil {
		return store.UptimeSample{}, false, err
	}
	return us, true, nil
}

func (s *DB) PutUptimeSample(ctx context.Context, us store.UptimeSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uptime_sample(name, captured_at, uptime_seconds)
		VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			captured_at=excluded.captured_at,
			uptime_seconds=excluded.uptime_seconds;`,
		us.Name, us.CapturedAt.UTC(), us.UptimeSeconds)
	return err
}
