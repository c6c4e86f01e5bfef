package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/vigil/internal/detector"
	"github.com/loykin/vigil/internal/store"
	"github.com/loykin/vigil/internal/target"
)

// ErrVerificationFailed means the restart action ran but the target never
// showed up alive within the verification timeout. The caller reports it and
// leaves the retry to the next policy-gated tick.
var ErrVerificationFailed = errors.New("restart did not bring target up")

const verifyPollInterval = 500 * time.Millisecond

// Executor invokes a target's restart action and verifies post-restart
// liveness within a bounded timeout.
type Executor struct {
	Store  store.Store
	Logger *slog.Logger
}

// Execute charges the ledger, runs the restart action, and polls the
// detector until the target is alive or the verification timeout expires.
//
// The ledger is persisted (count incremented, last_restart stamped) before
// the action is awaited, so an overlapping invocation cannot double-restart
// while one is in flight: it would hit the cooldown instead.
func (e *Executor) Execute(ctx context.Context, desc *target.Descriptor, det detector.Detector, led store.Ledger, now time.Time) (store.Ledger, error) {
	led.RestartCount++
	led.LastRestart = now
	if err := e.Store.PutLedger(ctx, led); err != nil {
		return led, fmt.Errorf("persist ledger before restart: %w", err)
	}

	actionCtx, cancel := context.WithTimeout(ctx, desc.VerifyTimeout)
	cmd := desc.BuildRestartCommand(actionCtx)
	err := cmd.Run()
	cancel()
	if err != nil {
		return led, fmt.Errorf("restart action: %w", err)
	}
	e.Logger.Info("restart action completed", "action", desc.RestartAction)

	deadline := time.Now().Add(desc.VerifyTimeout)
	for {
		alive, aerr := det.Alive()
		if aerr != nil {
			e.Logger.Warn("liveness query failed during verification", "error", aerr)
		} else if alive {
			return led, nil
		}
		if time.Now().After(deadline) {
			return led, ErrVerificationFailed
		}
		select {
		case <-ctx.Done():
			return led, ctx.Err()
		case <-time.After(verifyPollInterval):
		}
	}
}
