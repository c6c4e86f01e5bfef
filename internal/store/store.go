package store

import (
	"context"
	"time"
)

// Ledger is the persisted restart-quota state for one target. It survives
// supervisor restarts so that a relaunched supervisor cannot forget how many
// restarts it already spent in the current window.
//
// WindowStart marks the beginning of the current rate-limit window.
// LastRestart is the zero time when the target has never been restarted.
type Ledger struct {
	Name         string    `json:"name"`
	RestartCount uint32    `json:"restart_count"`
	WindowStart  time.Time `json:"window_start"`
	LastRestart  time.Time `json:"last_restart"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UptimeSample is the previously observed host uptime for one target's
// supervisor, kept so sleep detection can compare wall-clock elapsed against
// uptime elapsed across ticks (and across supervisor restarts).
type UptimeSample struct {
	Name          string    `json:"name"`
	CapturedAt    time.Time `json:"captured_at"`
	UptimeSeconds uint64    `json:"uptime_seconds"`
}

// Store persists the per-target Ledger and UptimeSample outside the
// supervisor's own memory. Implementations must make each Put atomic so a
// concurrently starting second instance can never observe a half-written
// record.
type Store interface {
	EnsureSchema(ctx context.Context) error
	GetLedger(ctx context.Context, name string) (Ledger, bool, error)
	PutLedger(ctx context.Context, led Ledger) error
	GetUptimeSample(ctx context.Context, name string) (UptimeSample, bool, error)
	PutUptimeSample(ctx context.Context, s UptimeSample) error
	Close() error
}
