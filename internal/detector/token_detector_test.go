//go:build !windows

package detector

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// startSleep starts a short-lived sleep process and returns it already started.
func startSleep(t *testing.T, dur string) *exec.Cmd {
	t.Helper()
	// #nosec G204
	cmd := exec.Command("/bin/sh", "-c", "sleep "+dur)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() })
	return cmd
}

func TestTokenFileDetector_MissingFile(t *testing.T) {
	d := TokenFileDetector{Path: filepath.Join(t.TempDir(), "absent.pid"), Token: "w"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if alive {
		t.Fatalf("expected not alive for missing token file")
	}
}

func TestTokenFileDetector_AliveWithMatchingToken(t *testing.T) {
	cmd := startSleep(t, "5")
	pid := cmd.Process.Pid
	time.Sleep(20 * time.Millisecond)
	start := getProcStartUnix(pid)
	if start == 0 {
		t.Skip("process start time unavailable on this platform")
	}

	path := filepath.Join(t.TempDir(), "worker.token")
	if err := WriteTokenFile(path, pid, "relay-worker", start); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	d := TokenFileDetector{Path: path, Token: "relay-worker"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if !alive {
		t.Fatalf("expected alive with matching token and start time")
	}
}

func TestTokenFileDetector_TokenMismatch(t *testing.T) {
	cmd := startSleep(t, "5")
	pid := cmd.Process.Pid

	path := filepath.Join(t.TempDir(), "worker.token")
	if err := WriteTokenFile(path, pid, "other-worker", 0); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	d := TokenFileDetector{Path: path, Token: "relay-worker"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if alive {
		t.Fatalf("expected not alive when token does not match")
	}
}

func TestTokenFileDetector_StartTimeMismatch(t *testing.T) {
	cmd := startSleep(t, "5")
	pid := cmd.Process.Pid
	time.Sleep(20 * time.Millisecond)
	start := getProcStartUnix(pid)
	if start == 0 {
		t.Skip("process start time unavailable on this platform")
	}

	path := filepath.Join(t.TempDir(), "worker.token")
	// Wrong start time simulates PID reuse by an unrelated process.
	if err := WriteTokenFile(path, pid, "relay-worker", start+9999); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	d := TokenFileDetector{Path: path, Token: "relay-worker"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if alive {
		t.Fatalf("expected not alive when recorded start time mismatches")
	}
}

func TestTokenFileDetector_DeadPID(t *testing.T) {
	cmd := startSleep(t, "0.05")
	pid := cmd.Process.Pid
	_, _ = cmd.Process.Wait()

	path := filepath.Join(t.TempDir(), "worker.token")
	if err := WriteTokenFile(path, pid, "relay-worker", 0); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	d := TokenFileDetector{Path: path, Token: "relay-worker"}
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if alive {
		t.Fatalf("expected not alive for exited pid %d", pid)
	}
}

func TestTokenFileDetector_InvalidPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.token")
	if err := os.WriteFile(path, []byte("not-a-number\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	d := TokenFileDetector{Path: path}
	if _, err := d.Alive(); err == nil {
		t.Fatalf("expected error for malformed pid line")
	}
}

func TestReadTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.token")
	if err := WriteTokenFile(path, 4242, "w", 0); err != nil {
		t.Fatal(err)
	}
	pid, err := ReadTokenFile(path)
	if err != nil {
		t.Fatalf("ReadTokenFile: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("pid = %d, want 4242", pid)
	}
}

func TestPIDDetector(t *testing.T) {
	d := PIDDetector{PID: os.Getpid()}
	alive, err := d.Alive()
	if err != nil || !alive {
		t.Fatalf("expected own pid alive, got alive=%v err=%v", alive, err)
	}
	if d.Describe() != "pid:"+strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected describe: %s", d.Describe())
	}
}
