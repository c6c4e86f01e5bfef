package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/vigil/internal/detector"
	"github.com/loykin/vigil/internal/history"
	"github.com/loykin/vigil/internal/logscan"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/policy"
	"github.com/loykin/vigil/internal/store"
	"github.com/loykin/vigil/internal/target"
	"github.com/loykin/vigil/internal/wake"
)

// State is the monitor loop phase, exposed through Status for operators.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateHealthy    State = "healthy"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Failure kinds, used as the metrics label and the audit reason prefix.
const (
	KindLiveness = "liveness"
	KindLog      = "log"
	KindSleep    = "sleep"
)

// Scanner matches the log failure scanner. Satisfied by logscan.Scanner.
type Scanner interface {
	Scan(path string, sigs []logscan.Signature, now time.Time) (*logscan.Signature, error)
}

// Restarter performs one policy-approved restart attempt. Satisfied by
// executor.Executor.
type Restarter interface {
	Execute(ctx context.Context, desc *target.Descriptor, det detector.Detector, led store.Ledger, now time.Time) (store.Ledger, error)
}

// UptimeFunc samples the current host uptime. Defaults to wake.Sample.
type UptimeFunc func(name string, now time.Time) (store.UptimeSample, error)

// Monitor supervises exactly one target: it probes liveness, scans the
// target's log, detects host sleep, and restarts the target through the
// policy gate. One goroutine runs the loop; Status may be read concurrently.
type Monitor struct {
	desc     target.Descriptor
	det      detector.Detector
	store    store.Store
	scanner  Scanner
	restart  Restarter
	uptime   UptimeFunc
	logger   *slog.Logger
	sinks    []history.Sink
	now      func() time.Time
	interval time.Duration

	mu       sync.Mutex
	state    State
	lastTick time.Time
	lastUp   bool
}

// Status is a point-in-time snapshot of the monitor for the CLI and the
// HTTP status endpoint.
type Status struct {
	Target   string    `json:"target"`
	State    State     `json:"state"`
	LastTick time.Time `json:"last_tick"`
	Up       bool      `json:"up"`
	Ledger   store.Ledger
}

// Option adjusts a Monitor; mainly a test seam.
type Option func(*Monitor)

func WithDetector(d detector.Detector) Option { return func(m *Monitor) { m.det = d } }
func WithScanner(s Scanner) Option            { return func(m *Monitor) { m.scanner = s } }
func WithUptimeFunc(f UptimeFunc) Option      { return func(m *Monitor) { m.uptime = f } }
func WithClock(now func() time.Time) Option   { return func(m *Monitor) { m.now = now } }
func WithInterval(d time.Duration) Option     { return func(m *Monitor) { m.interval = d } }
func WithSinks(sinks ...history.Sink) Option  { return func(m *Monitor) { m.sinks = sinks } }

// New builds a monitor for one target. The descriptor must already be
// validated and defaulted.
func New(desc target.Descriptor, st store.Store, r Restarter, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		desc:     desc,
		det:      desc.Detector(),
		store:    st,
		scanner:  logscan.Scanner{},
		restart:  r,
		uptime:   wake.Sample,
		logger:   logger,
		now:      time.Now,
		interval: desc.CheckInterval,
		state:    StateIdle,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run drives the check loop until ctx is canceled. The first check happens
// immediately; later checks follow the configured interval. Per-tick errors
// are logged and never abort the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"detector", m.det.Describe(), "interval", m.interval.String())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.setState(StateStopped)
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Status returns a snapshot of loop state plus the persisted ledger.
func (m *Monitor) Status(ctx context.Context) Status {
	m.mu.Lock()
	st := Status{Target: m.desc.Name, State: m.state, LastTick: m.lastTick, Up: m.lastUp}
	m.mu.Unlock()
	if led, ok, err := m.store.GetLedger(ctx, m.desc.Name); err == nil && ok {
		st.Ledger = led
	}
	return st
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// tick runs one CHECKING pass and returns the monitor to IDLE (or HEALTHY
// metadata) regardless of what it found.
func (m *Monitor) tick(ctx context.Context) {
	m.setState(StateChecking)
	defer m.setState(StateIdle)

	now := m.now().UTC()
	m.mu.Lock()
	m.lastTick = now
	m.mu.Unlock()
	metrics.IncTick(m.desc.Name)

	alive, err := m.det.Alive()
	if err != nil {
		// Cannot trust anything this tick; skip rather than restart blind.
		m.logger.Warn("liveness query failed, skipping tick", "error", err)
		return
	}
	m.mu.Lock()
	m.lastUp = alive
	m.mu.Unlock()
	metrics.SetTargetUp(m.desc.Name, alive)

	// A dead target goes straight to the restart path; the sleep and log
	// detectors only matter while the process is up, and the uptime sample
	// must not be consumed by a tick that already decided.
	var slept bool
	var sig *logscan.Signature
	if alive {
		slept = m.checkSleep(ctx, now)
		if m.desc.LogPath != "" && len(m.desc.Signatures) > 0 {
			sig, err = m.scanner.Scan(m.desc.LogPath, m.desc.Signatures, now)
			if err != nil {
				m.logger.Warn("log scan failed, skipping log detector", "error", err)
				sig = nil
			}
		}
	}

	kind, reason := classify(alive, slept, sig)
	if kind == "" {
		m.setState(StateHealthy)
		m.logger.Info("heartbeat", "up", true)
		return
	}

	metrics.IncFailure(m.desc.Name, kind)
	m.logger.Warn("failure detected", "kind", kind, "reason", reason)
	m.emit(ctx, failureEvent(kind), now, reason, 0)

	m.maybeRestart(ctx, now, kind, reason)
}

// checkSleep samples host uptime, compares against the persisted prior
// sample, and always overwrites the sample afterwards so one suspend is
// reported exactly once.
func (m *Monitor) checkSleep(ctx context.Context, now time.Time) bool {
	cur, err := m.uptime(m.desc.Name, now)
	if err != nil {
		m.logger.Warn("uptime sample failed, skipping sleep detector", "error", err)
		return false
	}
	prev, _, err := m.store.GetUptimeSample(ctx, m.desc.Name)
	if err != nil {
		m.logger.Warn("prior uptime sample unavailable", "error", err)
		prev = store.UptimeSample{}
	}
	slept := wake.DetectSleep(prev, cur, m.desc.SleepThreshold)
	if err := m.store.PutUptimeSample(ctx, cur); err != nil {
		m.logger.Warn("persist uptime sample failed", "error", err)
	}
	return slept
}

// maybeRestart consults the policy gate and, when allowed, runs one restart
// attempt. Denials are still persisted so an idempotent window reset sticks.
func (m *Monitor) maybeRestart(ctx context.Context, now time.Time, kind, reason string) {
	led, _, err := m.store.GetLedger(ctx, m.desc.Name)
	if err != nil {
		m.logger.Error("ledger read failed, cannot evaluate restart", "error", err)
		return
	}
	if led.Name == "" {
		led.Name = m.desc.Name
	}

	lim := policy.Limits{
		MaxRestarts: m.desc.MaxRestartsPerWindow,
		Window:      m.desc.Window,
		Cooldown:    m.desc.Cooldown,
	}
	decision, led := policy.Decide(led, now, lim)
	switch decision {
	case policy.DenyRateLimited:
		m.logger.Warn("restart denied: rate limit exceeded",
			"count", led.RestartCount, "window", m.desc.Window.String())
		metrics.IncDenial(m.desc.Name, decision.String())
		m.emit(ctx, history.EventRestartDenied, now, decision.String(), led.RestartCount)
		m.persistLedger(ctx, led)
		return
	case policy.DenyCooldown:
		m.logger.Info("restart denied: cooldown active",
			"last_restart", led.LastRestart, "cooldown", m.desc.Cooldown.String())
		metrics.IncDenial(m.desc.Name, decision.String())
		m.emit(ctx, history.EventRestartDenied, now, decision.String(), led.RestartCount)
		m.persistLedger(ctx, led)
		return
	}

	m.setState(StateRestarting)
	m.logger.Info("restarting target", "kind", kind, "reason", reason,
		"attempt", led.RestartCount+1, "of", m.desc.MaxRestartsPerWindow)

	led, err = m.restart.Execute(ctx, &m.desc, m.det, led, now)
	metrics.SetLedgerCount(m.desc.Name, led.RestartCount)
	if err != nil {
		metrics.IncRestart(m.desc.Name, false)
		m.logger.Error("restart failed", "error", err)
		m.emit(ctx, history.EventRestartFailed, now, err.Error(), led.RestartCount)
		return
	}
	metrics.IncRestart(m.desc.Name, true)
	m.logger.Info("restart verified", "count", led.RestartCount)
	m.emit(ctx, history.EventRestartSucceeded, now, reason, led.RestartCount)
}

func (m *Monitor) persistLedger(ctx context.Context, led store.Ledger) {
	if err := m.store.PutLedger(ctx, led); err != nil {
		m.logger.Warn("persist ledger failed", "error", err)
	}
}

// emit fans an event out to every configured history sink.
func (m *Monitor) emit(ctx context.Context, t history.EventType, at time.Time, reason string, count uint32) {
	e := history.Event{Type: t, OccurredAt: at, Target: m.desc.Name, Reason: reason, RestartCount: count}
	for _, s := range m.sinks {
		if err := s.Send(ctx, e); err != nil {
			m.logger.Warn("history sink send failed", "error", err)
		}
	}
}

// classify picks the failure to report this tick. A dead process outranks a
// suspend, which outranks a log signature; at most one restart per tick.
func classify(alive, slept bool, sig *logscan.Signature) (kind, reason string) {
	switch {
	case !alive:
		return KindLiveness, "target not running"
	case slept:
		return KindSleep, "host sleep/wake detected"
	case sig != nil:
		return KindLog, "log signature: " + sig.Name
	default:
		return "", ""
	}
}

func failureEvent(kind string) history.EventType {
	switch kind {
	case KindLiveness:
		return history.EventTargetDown
	case KindSleep:
		return history.EventSleepDetected
	default:
		return history.EventFailureDetected
	}
}
