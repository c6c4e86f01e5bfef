package wake

import (
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/loykin/vigil/internal/store"
)

// DefaultThreshold is how much wall-clock time may outrun host uptime before
// we conclude the host was suspended.
const DefaultThreshold = 60 * time.Second

// Sample captures the current host uptime for the named target.
func Sample(name string, now time.Time) (store.UptimeSample, error) {
	up, err := host.Uptime()
	if err != nil {
		return store.UptimeSample{}, err
	}
	return store.UptimeSample{Name: name, CapturedAt: now, UptimeSeconds: up}, nil
}

// DetectSleep reports whether the host was suspended between prev and cur.
// While the host sleeps, wall-clock time keeps advancing but uptime does not,
// so a wall/uptime gap larger than threshold means the host slept for roughly
// that gap and any persistent connection held by the worker is presumed dead.
//
// A reboot between samples makes the uptime delta negative, which also trips
// the threshold; that is intentional, since a reboot kills connections too.
// When uptime advanced at least as much as the wall clock, no suspend
// happened and the result is always false.
func DetectSleep(prev, cur store.UptimeSample, threshold time.Duration) bool {
	if prev.CapturedAt.IsZero() {
		return false // nothing to compare against on the first tick
	}
	wallSec := int64(cur.CapturedAt.Sub(prev.CapturedAt) / time.Second)
	uptimeSec := int64(cur.UptimeSeconds) - int64(prev.UptimeSeconds)
	return wallSec-uptimeSec > int64(threshold/time.Second)
}
