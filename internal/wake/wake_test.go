package wake

import (
	"testing"
	"time"

	"github.com/loykin/vigil/internal/store"
)

func sampleAt(at time.Time, uptime uint64) store.UptimeSample {
	return store.UptimeSample{Name: "relay", CapturedAt: at, UptimeSeconds: uptime}
}

func TestDetectSleep_SuspendDetected(t *testing.T) {
	// Scenario: 600s of wall time but only 30s of uptime progress.
	base := time.Now()
	prev := sampleAt(base, 10_000)
	cur := sampleAt(base.Add(600*time.Second), 10_030)
	if !DetectSleep(prev, cur, DefaultThreshold) {
		t.Fatalf("expected sleep detected for wall=600s uptime=30s")
	}
}

func TestDetectSleep_MonotonicSafe(t *testing.T) {
	// uptime advanced at least as much as wall clock: never a suspend.
	base := time.Now()
	prev := sampleAt(base, 10_000)
	for _, extra := range []uint64{0, 1, 30, 600} {
		cur := sampleAt(base.Add(30*time.Second), 10_030+extra)
		if DetectSleep(prev, cur, DefaultThreshold) {
			t.Fatalf("false positive with uptime delta %ds >= wall delta 30s", 30+extra)
		}
	}
}

func TestDetectSleep_GapBelowThreshold(t *testing.T) {
	base := time.Now()
	prev := sampleAt(base, 10_000)
	// 45s gap between wall and uptime, threshold 60s
	cur := sampleAt(base.Add(75*time.Second), 10_030)
	if DetectSleep(prev, cur, DefaultThreshold) {
		t.Fatalf("gap below threshold must not signal sleep")
	}
}

func TestDetectSleep_RebootTripsThreshold(t *testing.T) {
	base := time.Now()
	prev := sampleAt(base, 500_000)
	// Host rebooted: uptime went backwards.
	cur := sampleAt(base.Add(5*time.Minute), 90)
	if !DetectSleep(prev, cur, DefaultThreshold) {
		t.Fatalf("reboot between samples should signal a dead connection")
	}
}

func TestDetectSleep_NoPriorSample(t *testing.T) {
	cur := sampleAt(time.Now(), 10)
	if DetectSleep(store.UptimeSample{}, cur, DefaultThreshold) {
		t.Fatalf("first tick has nothing to compare; must not signal sleep")
	}
}

func TestSample_CapturesHostUptime(t *testing.T) {
	now := time.Now()
	s, err := Sample("relay", now)
	if err != nil {
		t.Skipf("host uptime unavailable: %v", err)
	}
	if s.Name != "relay" || !s.CapturedAt.Equal(now) {
		t.Fatalf("unexpected sample: %+v", s)
	}
	if s.UptimeSeconds == 0 {
		t.Fatalf("expected non-zero host uptime")
	}
}
