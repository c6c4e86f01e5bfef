//go:build !windows

package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// pidAlive returns true if a process with given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// TokenFileDetector detects a worker via the token file the worker writes at
// its own startup and removes at clean shutdown. The file carries the PID on
// the first line and a JSON meta line with the worker's identity token and
// start time. The identity token replaces command-line substring matching;
// the start time guards against PID reuse after a reboot or wrap-around.
type TokenFileDetector struct {
	Path  string
	Token string
}

type tokenMeta struct {
	Token     string `json:"token"`
	StartUnix int64  `json:"start_unix"`
}

func (d TokenFileDetector) Alive() (bool, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Worker never started or shut down cleanly.
			return false, nil
		}
		return false, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pidStr := strings.TrimSpace(lines[0])
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return false, fmt.Errorf("invalid pid in %s: %w", d.Path, err)
	}

	var meta tokenMeta
	if len(lines) >= 2 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &meta); err != nil {
			return false, fmt.Errorf("invalid meta in %s: %w", d.Path, err)
		}
	}
	if d.Token != "" && meta.Token != d.Token {
		// Token file belongs to some other worker; not ours.
		return false, nil
	}
	if meta.StartUnix > 0 {
		cur := getProcStartUnix(pid)
		if cur > 0 && cur != meta.StartUnix {
			return false, nil // PID reused by an unrelated process
		}
	}

	return pidAlive(pid), nil
}

func (d TokenFileDetector) Describe() string { return "token:" + d.Path }

// ReadTokenFile returns the PID recorded in a token file, without any
// liveness or identity checks. Used by CLI commands that only need the PID.
func ReadTokenFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return pid, nil
}

// WriteTokenFile writes a token file in the format TokenFileDetector expects.
// Exposed so workers (and tests) can produce the file the prober consumes.
func WriteTokenFile(path string, pid int, token string, startUnix int64) error {
	meta, err := json.Marshal(tokenMeta{Token: token, StartUnix: startUnix})
	if err != nil {
		return err
	}
	content := strconv.Itoa(pid) + "\n" + string(meta) + "\n"
	return os.WriteFile(path, []byte(content), 0o600)
}

// PIDDetector detects by a provided PID number.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) { return pidAlive(d.PID), nil }
func (d PIDDetector) Describe() string     { return fmt.Sprintf("pid:%d", d.PID) }
