package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// shadowReport aggregates every persisted plan marked Shadow == true: what
// the agent would have done, had it not been running in observe-only mode.
type shadowReport struct {
	SessionsObserved int            `json:"sessions_observed"`
	CandidatesSeen   int            `json:"candidates_seen"`
	ByFinalAction    map[string]int `json:"by_final_action"`
	GuardrailBlocked int            `json:"guardrail_blocked"`
	BudgetBlocked    int            `json:"budget_blocked"`
}

func newShadowCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Inspect shadow-mode observations",
	}
	cmd.AddCommand(newShadowReportCmd(flags))
	return cmd
}

func newShadowReportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Aggregate every persisted shadow-mode plan into a summary",
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

			report := shadowReport{ByFinalAction: map[string]int{}}
			for _, sess := range sessions {
				plan, err := a.orch.LoadPlan(sess.ID)
				if err != nil || plan == nil || !plan.Shadow {
					continue
				}
				report.SessionsObserved++
				for _, cand := range plan.Candidates {
					report.CandidatesSeen++
					report.ByFinalAction[cand.FinalAction.String()]++
					if cand.GuardrailBlocked {
						report.GuardrailBlocked++
					}
					if cand.BudgetBlocked {
						report.BudgetBlocked++
					}
				}
			}

			return printJSON(cmd, report)
		},
	}
}
