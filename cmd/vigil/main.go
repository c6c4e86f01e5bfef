package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes: 0 success (including "already running"), 1 generic failure,
// 2 configuration error.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		var ce *configError
		if errors.As(err, &ce) {
			os.Exit(exitConfig)
		}
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	TargetName string
}

// configError marks a failure that operators fix by editing the config file.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "vigil",
		Short: "Keep long-running worker processes alive",
		Long: `Vigil watches a worker process for crashes, stuck connections surfaced in
its log, and host sleep/wake cycles, and restarts it within a persisted
rate-limit budget.

Examples:
  vigil run --config=vigil.toml --name=relay     # foreground supervisor
  vigil start --config=vigil.toml --name=relay   # detach into background
  vigil status --config=vigil.toml --name=relay
  vigil logs --config=vigil.toml --name=relay -n 100`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "vigil.toml", "path to TOML config file")
	root.PersistentFlags().StringVar(&flags.TargetName, "name", "", "target name (optional when the config defines exactly one)")

	root.AddCommand(
		createRunCommand(flags),
		createStartCommand(flags),
		createStopCommand(flags),
		createRestartCommand(flags),
		createStatusCommand(flags),
		createLogsCommand(flags),
	)
	return root
}
