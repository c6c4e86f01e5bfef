package target

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/vigil/internal/detector"
	"github.com/loykin/vigil/internal/logscan"
)

// Default thresholds, overridable per target in configuration.
const (
	DefaultCheckInterval  = 30 * time.Second
	DefaultMaxRestarts    = 6
	DefaultWindow         = time.Hour
	DefaultCooldown       = 60 * time.Second
	DefaultVerifyTimeout  = 10 * time.Second
	DefaultSleepThreshold = 60 * time.Second
)

// Descriptor identifies one supervised worker: how to tell whether it runs,
// where its log lives, how to restart it, and the restart-quota thresholds.
// Immutable once loaded; owned exclusively by one monitor loop.
type Descriptor struct {
	Name          string
	Token         string // identity token the worker writes into its token file
	TokenFile     string
	ProbeCommand  string // optional command probe instead of the token file
	LogPath       string
	RestartAction string

	CheckInterval        time.Duration
	MaxRestartsPerWindow uint32
	Window               time.Duration
	Cooldown             time.Duration
	VerifyTimeout        time.Duration
	SleepThreshold       time.Duration

	Signatures []logscan.Signature
}

// ApplyDefaults fills unset thresholds with the package defaults.
func (d *Descriptor) ApplyDefaults() {
	if d.CheckInterval <= 0 {
		d.CheckInterval = DefaultCheckInterval
	}
	if d.MaxRestartsPerWindow == 0 {
		d.MaxRestartsPerWindow = DefaultMaxRestarts
	}
	if d.Window <= 0 {
		d.Window = DefaultWindow
	}
	if d.Cooldown <= 0 {
		d.Cooldown = DefaultCooldown
	}
	if d.VerifyTimeout <= 0 {
		d.VerifyTimeout = DefaultVerifyTimeout
	}
	if d.SleepThreshold <= 0 {
		d.SleepThreshold = DefaultSleepThreshold
	}
}

// Validate reports configuration errors. A missing or unresolvable restart
// action is fatal at startup: the supervisor would be useless without it.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("target requires a name")
	}
	if strings.TrimSpace(d.TokenFile) == "" && strings.TrimSpace(d.ProbeCommand) == "" {
		return fmt.Errorf("target %s: token_file or probe_command required", d.Name)
	}
	action := strings.TrimSpace(d.RestartAction)
	if action == "" {
		return fmt.Errorf("target %s: restart_action required", d.Name)
	}
	bin := strings.Fields(action)[0]
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("target %s: restart_action %q not executable: %w", d.Name, bin, err)
	}
	return nil
}

// Detector returns the liveness strategy for this target: the token file
// written by the worker, or a probe command when configured.
func (d *Descriptor) Detector() detector.Detector {
	if strings.TrimSpace(d.TokenFile) != "" {
		return detector.TokenFileDetector{Path: d.TokenFile, Token: d.Token}
	}
	return detector.CommandDetector{Command: d.ProbeCommand}
}

// BuildRestartCommand constructs the restart action command. It avoids
// invoking a shell when not necessary, honors an explicit shell invocation
// already present in the action string (e.g. "sh -c '...'") without
// double-wrapping, and falls back to /bin/sh -c when metacharacters are
// present.
func (d *Descriptor) BuildRestartCommand(ctx context.Context) *exec.Cmd {
	cmdStr := strings.TrimSpace(d.RestartAction)
	if cmdStr == "" {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr and returns the argument after "-c", with one
// wrapping pair of quotes stripped so redirections inside still parse.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
