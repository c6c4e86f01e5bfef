package history

import (
	"context"
	"time"
)

// EventType classifies a supervisor decision worth auditing.
type EventType string

const (
	EventTargetDown       EventType = "target_down"
	EventFailureDetected  EventType = "failure_detected"
	EventSleepDetected    EventType = "sleep_detected"
	EventRestartSucceeded EventType = "restart_succeeded"
	EventRestartFailed    EventType = "restart_failed"
	EventRestartDenied    EventType = "restart_denied"
)

// Event records one supervisor decision: what was observed, why a restart
// was or was not attempted, and the ledger count at that moment. The text
// audit log carries the same information; sinks make it queryable.
type Event struct {
	Type         EventType `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	Target       string    `json:"target"`
	Reason       string    `json:"reason"`
	RestartCount uint32    `json:"restart_count"`
}

// Sink is a destination for supervisor decision events (analytics and audit
// systems). Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
