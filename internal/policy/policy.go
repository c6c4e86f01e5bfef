package policy

import (
	"time"

	"github.com/loykin/vigil/internal/store"
)

// Decision is the outcome of evaluating the restart ledger against the
// configured limits.
type Decision int

const (
	Allow Decision = iota
	DenyRateLimited
	DenyCooldown
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyRateLimited:
		return "deny_rate_limited"
	case DenyCooldown:
		return "deny_cooldown"
	default:
		return "unknown"
	}
}

// Limits are the per-target restart-quota thresholds.
type Limits struct {
	MaxRestarts uint32
	Window      time.Duration
	Cooldown    time.Duration
}

// Decide evaluates whether a restart attempt is allowed right now.
// It is a pure function: the (possibly window-reset) ledger is returned and
// the caller decides when to persist it.
//
// The rate-limit check runs before the cooldown check so operators get an
// unambiguous "too many restarts this window" signal once the cap is hit,
// instead of a generic cooldown message.
func Decide(led store.Ledger, now time.Time, lim Limits) (Decision, store.Ledger) {
	if led.WindowStart.IsZero() || now.Sub(led.WindowStart) > lim.Window {
		led.RestartCount = 0
		led.WindowStart = now
	}
	if led.RestartCount >= lim.MaxRestarts {
		return DenyRateLimited, led
	}
	if !led.LastRestart.IsZero() && now.Sub(led.LastRestart) < lim.Cooldown {
		return DenyCooldown, led
	}
	return Allow, led
}
