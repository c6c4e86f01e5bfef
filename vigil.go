package vigil

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/detector"
	"github.com/loykin/vigil/internal/executor"
	"github.com/loykin/vigil/internal/history"
	historyfactory "github.com/loykin/vigil/internal/history/factory"
	"github.com/loykin/vigil/internal/lock"
	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/logscan"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
	iapi "github.com/loykin/vigil/internal/server"
	"github.com/loykin/vigil/internal/store"
	storefactory "github.com/loykin/vigil/internal/store/factory"
	"github.com/loykin/vigil/internal/target"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Target = target.Descriptor

type Ledger = store.Ledger

type Status = monitor.Status

type Signature = logscan.Signature

type HistorySink = history.Sink

type LockHandle = lock.Handle

var ErrAlreadyRunning = lock.ErrAlreadyRunning

// Supervisor is a thin facade over internal/monitor for embedding: it owns
// the store, the restart executor, and the monitor loop for one target.
type Supervisor struct {
	mon   *monitor.Monitor
	store store.Store
	log   *slog.Logger
}

// NewSupervisor wires a supervisor for one target. The descriptor must pass
// Validate; call ApplyDefaults first if thresholds are unset. The store DSN
// accepts a sqlite path or a postgres:// URL. Sinks receive every decision
// event in addition to the audit log.
func NewSupervisor(desc Target, storeDSN string, log *slog.Logger, sinks ...HistorySink) (*Supervisor, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	st, err := storefactory.NewFromDSN(storeDSN)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}
	if log == nil {
		log, _ = logger.New(desc.Name, logger.Config{}, nil)
	}
	ex := &executor.Executor{Store: st, Logger: log}
	mon := monitor.New(desc, st, ex, log, monitor.WithSinks(sinks...))
	return &Supervisor{mon: mon, store: st, log: log}, nil
}

// Run drives the monitor loop until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error { return s.mon.Run(ctx) }

// Status returns the current loop state and persisted ledger.
func (s *Supervisor) Status(ctx context.Context) Status { return s.mon.Status(ctx) }

// Close releases the supervisor's store.
func (s *Supervisor) Close() error { return s.store.Close() }

// AcquireLock takes the singleton lock for a target under dir.
func AcquireLock(dir, name string) (*LockHandle, error) { return lock.Acquire(dir, name) }

// LoadConfig parses and validates a TOML config file.
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// NewSinkFromDSN opens a history sink (sqlite path, postgres:// or
// clickhouse:// DSN).
func NewSinkFromDSN(dsn string) (HistorySink, error) { return historyfactory.NewSinkFromDSN(dsn) }

// WriteTokenFile writes the liveness token file a worker publishes at
// startup, in the format the supervisor's prober consumes. Pass the value of
// ProcStartUnix for the worker's own PID as startUnix (or 0 to skip the
// PID-reuse check).
func WriteTokenFile(path string, pid int, token string, startUnix int64) error {
	return detector.WriteTokenFile(path, pid, token, startUnix)
}

// ProcStartUnix returns the start time of a process in unix seconds, or 0
// when it cannot be determined.
func ProcStartUnix(pid int) int64 { return detector.ProcStartUnix(pid) }

// NewHTTPServer starts the read-only status/metrics endpoint for a
// supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) *http.Server {
	return iapi.NewServer(addr, basePath, s.mon, s.log)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
