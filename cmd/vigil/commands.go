package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/executor"
	"github.com/loykin/vigil/internal/history"
	historyfactory "github.com/loykin/vigil/internal/history/factory"
	"github.com/loykin/vigil/internal/lock"
	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/logscan"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
	"github.com/loykin/vigil/internal/server"
	"github.com/loykin/vigil/internal/store"
	storefactory "github.com/loykin/vigil/internal/store/factory"
	"github.com/loykin/vigil/internal/target"
)

const stopWait = 10 * time.Second

// loadTarget resolves the config file and the selected target. Failures here
// are configuration errors (exit code 2).
func loadTarget(flags *GlobalFlags) (*config.Config, target.Descriptor, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, target.Descriptor{}, &configError{err}
	}
	desc, err := cfg.Target(flags.TargetName)
	if err != nil {
		return nil, target.Descriptor{}, &configError{err}
	}
	return cfg, desc, nil
}

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor in the foreground",
		Long: `Run the monitor loop for one target until SIGINT/SIGTERM. This is the
process that "start" detaches into the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, err := loadTarget(flags)
			if err != nil {
				return err
			}
			return runSupervisor(cfg, desc)
		},
	}
}

func runSupervisor(cfg *config.Config, desc target.Descriptor) error {
	h, err := lock.Acquire(cfg.RunDir, desc.Name)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) {
			fmt.Printf("supervisor for %s already running, nothing to do\n", desc.Name)
			return nil
		}
		return err
	}
	defer func() { _ = h.Release() }()

	st, err := storefactory.NewFromDSN(cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("store schema: %w", err)
	}

	var sinks []history.Sink
	if cfg.HistoryDSN != "" {
		sink, err := historyfactory.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		if c, ok := sink.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}
		sinks = append(sinks, sink)
	}

	log, closer := logger.New(desc.Name, cfg.Log, os.Stdout)
	defer func() { _ = closer.Close() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	ex := &executor.Executor{Store: st, Logger: log}
	mon := monitor.New(desc, st, ex, log, monitor.WithSinks(sinks...))

	if cfg.HTTPListen != "" {
		srv := server.NewServer(cfg.HTTPListen, "", mon, log)
		defer func() { _ = srv.Close() }()
		log.Info("status endpoint listening", "addr", cfg.HTTPListen)
	}

	return mon.Run(ctx)
}

func createStartCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the supervisor in the background",
		Long: `Spawn a detached "vigil run" for the target. When a live supervisor
already holds the lock this is a no-op and exits 0.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, err := loadTarget(flags)
			if err != nil {
				return err
			}
			return startSupervisor(cfg, desc, flags)
		},
	}
}

func startSupervisor(cfg *config.Config, desc target.Descriptor, flags *GlobalFlags) error {
	if pid, alive, err := lock.Owner(cfg.RunDir, desc.Name); err == nil && alive {
		fmt.Printf("supervisor for %s already running (pid %d)\n", desc.Name, pid)
		return nil
	}

	pid, err := spawnDetached(cfg, desc, flags)
	if err != nil {
		return fmt.Errorf("spawn supervisor: %w", err)
	}

	// Give the child a moment to take the lock so failures surface here
	// instead of silently in the background.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, alive, err := lock.Owner(cfg.RunDir, desc.Name); err == nil && alive {
			fmt.Printf("supervisor for %s started (pid %d)\n", desc.Name, pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("supervisor for %s did not take the lock, check the audit log", desc.Name)
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, err := loadTarget(flags)
			if err != nil {
				return err
			}
			return stopSupervisor(cfg, desc)
		},
	}
}

func stopSupervisor(cfg *config.Config, desc target.Descriptor) error {
	pid, alive, err := lock.Owner(cfg.RunDir, desc.Name)
	if err != nil || !alive {
		fmt.Printf("supervisor for %s not running\n", desc.Name)
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		if _, alive, _ := lock.Owner(cfg.RunDir, desc.Name); !alive {
			fmt.Printf("supervisor for %s stopped\n", desc.Name)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("supervisor pid %d did not exit within %s", pid, stopWait)
}

func createRestartCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, err := loadTarget(flags)
			if err != nil {
				return err
			}
			if err := stopSupervisor(cfg, desc); err != nil {
				return err
			}
			return startSupervisor(cfg, desc, flags)
		},
	}
}

// statusInfo is the JSON shape printed by the status command.
type statusInfo struct {
	Target        string       `json:"target"`
	Running       bool         `json:"running"`
	SupervisorPID int          `json:"supervisor_pid,omitempty"`
	Ledger        store.Ledger `json:"ledger"`
	AuditLog      string       `json:"audit_log,omitempty"`
	RecentAudit   []string     `json:"recent_audit,omitempty"`
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show supervisor state and the restart ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, err := loadTarget(flags)
			if err != nil {
				return err
			}

			info := statusInfo{Target: desc.Name}
			if pid, alive, err := lock.Owner(cfg.RunDir, desc.Name); err == nil && alive {
				info.Running = true
				info.SupervisorPID = pid
			}

			st, err := storefactory.NewFromDSN(cfg.StoreDSN)
			if err == nil {
				defer func() { _ = st.Close() }()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if led, ok, err := st.GetLedger(ctx, desc.Name); err == nil && ok {
					info.Ledger = led
				}
			}

			if path := cfg.Log.AuditPath(desc.Name); path != "" {
				info.AuditLog = path
				if lines, err := logscan.TailLines(path, 10); err == nil {
					info.RecentAudit = lines
				}
			}

			printJSON(info)
			return nil
		},
	}
}

func createLogsCommand(flags *GlobalFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the last lines of the supervisor audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, err := loadTarget(flags)
			if err != nil {
				return err
			}
			path := cfg.Log.AuditPath(desc.Name)
			if path == "" {
				return &configError{fmt.Errorf("no [log] dir or path configured for target %s", desc.Name)}
			}
			out, err := logscan.TailLines(path, lines)
			if err != nil {
				return err
			}
			for _, l := range out {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to print")
	return cmd
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
