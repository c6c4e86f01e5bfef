package policy

import (
	"testing"
	"time"

	"github.com/loykin/vigil/internal/store"
)

var lim = Limits{MaxRestarts: 6, Window: time.Hour, Cooldown: time.Minute}

func TestDecide_FreshLedgerAllows(t *testing.T) {
	now := time.Now()
	d, led := Decide(store.Ledger{Name: "relay"}, now, lim)
	if d != Allow {
		t.Fatalf("decision = %v, want allow", d)
	}
	if !led.WindowStart.Equal(now) || led.RestartCount != 0 {
		t.Fatalf("fresh ledger not initialized: %+v", led)
	}
}

func TestDecide_RateLimited(t *testing.T) {
	// Scenario: 6 restarts already recorded within the current window.
	now := time.Now()
	led := store.Ledger{
		Name:         "relay",
		RestartCount: 6,
		WindowStart:  now.Add(-30 * time.Minute),
		LastRestart:  now.Add(-5 * time.Minute),
	}
	d, out := Decide(led, now, lim)
	if d != DenyRateLimited {
		t.Fatalf("decision = %v, want deny_rate_limited", d)
	}
	if out.RestartCount != 6 || !out.WindowStart.Equal(led.WindowStart) {
		t.Fatalf("ledger mutated on denial: %+v", out)
	}
}

func TestDecide_RateLimitBeatsCooldown(t *testing.T) {
	// Quota exhausted AND within cooldown: the rate-limit signal must win.
	now := time.Now()
	led := store.Ledger{
		Name:         "relay",
		RestartCount: 6,
		WindowStart:  now.Add(-10 * time.Minute),
		LastRestart:  now.Add(-10 * time.Second),
	}
	d, _ := Decide(led, now, lim)
	if d != DenyRateLimited {
		t.Fatalf("decision = %v, want deny_rate_limited before deny_cooldown", d)
	}
}

func TestDecide_Cooldown(t *testing.T) {
	// Scenario: last restart 10s ago with a 60s cooldown.
	now := time.Now()
	led := store.Ledger{
		Name:         "relay",
		RestartCount: 1,
		WindowStart:  now.Add(-10 * time.Minute),
		LastRestart:  now.Add(-10 * time.Second),
	}
	d, out := Decide(led, now, lim)
	if d != DenyCooldown {
		t.Fatalf("decision = %v, want deny_cooldown", d)
	}
	if out.RestartCount != 1 {
		t.Fatalf("ledger mutated on denial: %+v", out)
	}

	// Next allowed attempt is exactly at last_restart + cooldown.
	at := led.LastRestart.Add(lim.Cooldown)
	d, _ = Decide(led, at, lim)
	if d != Allow {
		t.Fatalf("decision at cooldown boundary = %v, want allow", d)
	}
}

func TestDecide_WindowReset(t *testing.T) {
	now := time.Now()
	led := store.Ledger{
		Name:         "relay",
		RestartCount: 6,
		WindowStart:  now.Add(-2 * time.Hour),
		LastRestart:  now.Add(-90 * time.Minute),
	}
	d, out := Decide(led, now, lim)
	if d != Allow {
		t.Fatalf("decision = %v, want allow after window expiry", d)
	}
	if out.RestartCount != 0 || !out.WindowStart.Equal(now) {
		t.Fatalf("window not reset: %+v", out)
	}
}

func TestDecide_WindowResetIdempotent(t *testing.T) {
	now := time.Now()
	led := store.Ledger{
		Name:         "relay",
		RestartCount: 4,
		WindowStart:  now.Add(-2 * time.Hour),
	}
	_, first := Decide(led, now, lim)
	_, second := Decide(first, now, lim)
	if first != second {
		t.Fatalf("repeated decide with unchanged now mutated ledger:\nfirst  %+v\nsecond %+v", first, second)
	}
}

// TestDecide_QuotaNeverExceeded simulates a long failure storm and asserts
// the count within any single window never exceeds the cap.
func TestDecide_QuotaNeverExceeded(t *testing.T) {
	led := store.Ledger{Name: "relay"}
	now := time.Unix(1_700_000_000, 0)
	allowedInWindow := uint32(0)
	for i := 0; i < 500; i++ {
		d, out := Decide(led, now, lim)
		if d == Allow {
			out.RestartCount++
			out.LastRestart = now
			if out.WindowStart.Equal(now) {
				allowedInWindow = 0
			}
			allowedInWindow++
			if allowedInWindow > lim.MaxRestarts {
				t.Fatalf("quota exceeded at step %d: %+v", i, out)
			}
		}
		if out.RestartCount > lim.MaxRestarts {
			t.Fatalf("ledger count %d exceeds cap at step %d", out.RestartCount, i)
		}
		led = out
		now = now.Add(30 * time.Second) // one failure per tick
	}
}

// TestDecide_CooldownSpacing asserts consecutive allowed restarts are always
// at least Cooldown apart.
func TestDecide_CooldownSpacing(t *testing.T) {
	led := store.Ledger{Name: "relay"}
	now := time.Unix(1_700_000_000, 0)
	var prevAllowed time.Time
	for i := 0; i < 2000; i++ {
		d, out := Decide(led, now, lim)
		if d == Allow {
			if !prevAllowed.IsZero() && now.Sub(prevAllowed) < lim.Cooldown {
				t.Fatalf("allowed restarts %v apart, cooldown %v", now.Sub(prevAllowed), lim.Cooldown)
			}
			prevAllowed = now
			out.RestartCount++
			out.LastRestart = now
		}
		led = out
		now = now.Add(7 * time.Second)
	}
}
