//go:build !windows

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/target"
)

// spawnDetached re-executes this binary as "vigil run" in a new session so
// the supervisor survives the launching terminal. Console output goes to a
// sibling of the audit log when one is configured, otherwise it is dropped
// (the audit log still captures decisions).
func spawnDetached(cfg *config.Config, desc target.Descriptor, flags *GlobalFlags) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	args := []string{"run", "--config", flags.ConfigPath, "--name", desc.Name}
	// #nosec G204
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil

	if audit := cfg.Log.AuditPath(desc.Name); audit != "" {
		consolePath := filepath.Join(filepath.Dir(audit), desc.Name+".console.log")
		// #nosec G304
		f, err := os.OpenFile(consolePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open console log: %w", err)
		}
		defer func() { _ = f.Close() }()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reparent to init; the lock file tracks the supervisor from here on.
	_ = cmd.Process.Release()
	return pid, nil
}
