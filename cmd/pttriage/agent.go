package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/processtriage/pttriage/internal/session"
)

func newAgentCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Multi-step snapshot/plan/apply/verify workflow",
		Long: `Each agent subcommand is one step of the triage pipeline, persisted
against a session ID so a later, separate invocation can continue it:

  pttriage agent sessions new --host $(hostname)
  pttriage agent snapshot --session <id>
  pttriage agent plan     --session <id>
  pttriage agent apply    --session <id>
  pttriage agent verify   --session <id>`,
	}

	cmd.AddCommand(
		newAgentSnapshotCmd(flags),
		newAgentPlanCmd(flags),
		newAgentApplyCmd(flags),
		newAgentVerifyCmd(flags),
		newAgentSessionsCmd(flags),
		newAgentCapabilitiesCmd(flags),
	)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAgentSnapshotCmd(flags *globalFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Scan and classify every process, persisting the result under --session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			snap, err := a.orch.Snapshot(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			return printJSON(cmd, snap)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to persist the snapshot under (required)")
	return cmd
}

func newAgentPlanCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	var dryRun, shadow bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Turn the session's snapshot into candidate actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			plan, err := a.orch.Plan(sessionID, dryRun, shadow)
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}
			if err := printJSON(cmd, plan); err != nil {
				return err
			}
			if len(plan.Candidates) == 0 {
				return nil
			}
			// A plan with at least one candidate exits nonzero so a caller
			// scripting this step can tell "nothing to do" apart from
			// "review this before applying" without parsing the JSON body.
			return errExit{code: 1}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute candidates but never apply them")
	cmd.Flags().BoolVar(&shadow, "shadow", false, "compute and record candidates as shadow observations only")
	return cmd
}

func newAgentApplyCmd(flags *globalFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute the session's planned, unblocked candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			outcome, err := a.orch.Apply(sessionID)
			if err != nil {
				return fmt.Errorf("apply: %w", err)
			}
			return printJSON(cmd, outcome)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
	return cmd
}

func newAgentVerifyCmd(flags *globalFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-check the session's applied actions' end state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			outcome, err := a.orch.Verify(sessionID)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			return printJSON(cmd, outcome)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
	return cmd
}

func newAgentCapabilitiesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Report which action runners this host and privilege level support",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			return printJSON(cmd, a.orch.Capabilities())
		},
	}
}

func newAgentSessionsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Create, inspect, extend, and end triage sessions",
	}
	cmd.AddCommand(
		newAgentSessionsNewCmd(flags),
		newAgentSessionsStatusCmd(flags),
		newAgentSessionsListCmd(flags),
		newAgentSessionsEndCmd(flags),
	)
	return cmd
}

func newAgentSessionsNewCmd(flags *globalFlags) *cobra.Command {
	var host, label string
	var ttlSeconds int64

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new session and print its ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			opts := session.CreateOptions{Host: host, Label: label}
			if ttlSeconds > 0 {
				opts.TTL = secondsToDuration(ttlSeconds)
			}
			id, err := a.sess.Create(opts)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "hostname this session scans")
	cmd.Flags().StringVar(&label, "label", "", "free-form session label")
	cmd.Flags().Int64Var(&ttlSeconds, "ttl-seconds", 0, "expire the session after this many seconds (0 = no expiry)")
	return cmd
}

func newAgentSessionsStatusCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a session's current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.sess.Status(sessionID)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			return printJSON(cmd, status)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
	return cmd
}

func newAgentSessionsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.db.ListSessions()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			return printJSON(cmd, sessions)
		},
	}
}

func newAgentSessionsEndCmd(flags *globalFlags) *cobra.Command {
	var sessionID, reason string
	cmd := &cobra.Command{
		Use:   "end",
		Short: "Mark a session ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.sess.End(sessionID, reason)
			if err != nil {
				return fmt.Errorf("end session: %w", err)
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the session ended")
	return cmd
}
