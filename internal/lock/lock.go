//go:build !windows

package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/loykin/vigil/internal/detector"
)

// ErrAlreadyRunning is returned when a live supervisor instance already
// holds the lock for the target. Callers treat this as "nothing to do",
// not as a failure.
var ErrAlreadyRunning = errors.New("another supervisor instance holds the lock")

// Handle is the ownership token for a target's singleton lock. Release is
// idempotent and must run on every exit path.
type Handle struct {
	path     string
	pid      int
	released atomic.Bool
}

type lockMeta struct {
	PID          int   `json:"pid"`
	StartUnix    int64 `json:"start_unix"`
	AcquiredUnix int64 `json:"acquired_unix"`
}

// Path returns the lock file location for a target.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".lock")
}

// Acquire takes the singleton lock for the named target. The lock file is
// prepared in a temp file and published with link(2), so it appears complete
// and atomically: two concurrent launches cannot both succeed and no reader
// ever observes a half-written lock. A lock whose recorded owner no longer
// exists (or whose PID was reused by another process, judged by start time)
// is stale and gets reclaimed.
func Acquire(dir, name string) (*Handle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := Path(dir, name)
	pid := os.Getpid()

	meta, err := json.Marshal(lockMeta{
		PID:          pid,
		StartUnix:    detector.ProcStartUnix(pid),
		AcquiredUnix: time.Now().Unix(),
	})
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".lock-*")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(append(meta, '\n')); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	// Second pass retries once after a stale lock was removed.
	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmpName, path)
		if err == nil {
			return &Handle{path: path, pid: pid}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		ownerPID, alive, oerr := Owner(dir, name)
		if oerr != nil && !os.IsNotExist(oerr) {
			// Garbage lock file: treat as stale.
			alive = false
		}
		if alive {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, ownerPID)
		}
		// Stale: owner is gone. Reclaim and retry the atomic link.
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, rerr
		}
	}
	return nil, ErrAlreadyRunning
}

// Owner reports the PID recorded in the target's lock file and whether that
// process still exists (with a start-time check against PID reuse).
func Owner(dir, name string) (pid int, alive bool, err error) {
	data, err := os.ReadFile(Path(dir, name))
	if err != nil {
		return 0, false, err
	}
	var meta lockMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, false, fmt.Errorf("corrupt lock file: %w", err)
	}
	ok, _ := detector.PIDDetector{PID: meta.PID}.Alive()
	if ok && meta.StartUnix > 0 {
		if cur := detector.ProcStartUnix(meta.PID); cur > 0 && cur != meta.StartUnix {
			ok = false // PID reused since the lock was written
		}
	}
	return meta.PID, ok, nil
}

// Release drops the lock. It only removes the file while this handle's PID
// is still the recorded owner, so releasing after a reclaim is harmless.
// Safe to call multiple times and from deferred paths.
func (h *Handle) Release() error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var meta lockMeta
	if err := json.Unmarshal(data, &meta); err == nil && meta.PID != h.pid {
		return nil // someone else reclaimed it; leave it alone
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
