// Command pttriage is the process-triage CLI and daemon: a thin facade over
// internal/orchestrator's scan -> plan -> apply -> verify pipeline.
//
// As a CLI, each "agent" subcommand is one step of that pipeline, persisting
// its artifact to the session's entry in the configured BoltDB so a later,
// separate invocation (possibly minutes apart, possibly a different process
// entirely) can read it back and continue. As a daemon (`pttriage run`), the
// same pipeline runs on a fixed interval until SIGINT/SIGTERM.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/processtriage/pttriage/internal/config"
)

// errExit signals a clean, already-reported exit with a specific status
// code — used where a nonzero exit is an expected outcome (a plan with
// candidates to review) rather than a failure worth printing as an error.
type errExit struct{ code int }

func (e errExit) Error() string { return "" }

func main() {
	rootCmd := newRootCmd()
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit errExit
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// globalFlags holds every flag shared across subcommands: where to find the
// daemon config, and the CLI-level overrides for the priors/policy
// resolution chain.
type globalFlags struct {
	configPath string
	policyPath string
	priorsPath string
	procRoot   string
	dbPath     string
	robotMode  bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:     "pttriage",
		Short:   "Bayesian process-triage agent",
		Version: fmt.Sprintf("%s (%s, built %s)", config.Version, config.GitCommit, config.BuildTime),
		Long: `pttriage scans the live process table, classifies each process
(useful, useful-but-misbehaving, abandoned, zombie) by conjugate Bayesian
inference over observed evidence, and turns that classification into a
bounded, guardrailed action — or, run non-destructively, just reports what
it would have done.`,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/pttriage/config.yaml", "path to the daemon config file")
	root.PersistentFlags().StringVar(&flags.policyPath, "policy-file", "", "override the resolved policy document path")
	root.PersistentFlags().StringVar(&flags.priorsPath, "priors-file", "", "override the resolved priors document path")
	root.PersistentFlags().StringVar(&flags.procRoot, "proc-root", "/proc", "root of the procfs tree to scan (mainly for tests)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db-path", "", "override the configured BoltDB path")
	root.PersistentFlags().BoolVar(&flags.robotMode, "robot-mode", false, "run under robot-mode thresholds (no human confirmation expected)")

	root.AddCommand(
		newScanCmd(flags),
		newAgentCmd(flags),
		newCheckCmd(flags),
		newShadowCmd(flags),
		newFleetCmd(flags),
		newRunCmd(flags),
	)

	return root
}
