package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/processtriage/pttriage/internal/config"
)

func newCheckCmd(flags *globalFlags) *cobra.Command {
	var checkPolicy, checkPriors, checkAll bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the resolved config, policy, and priors documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !checkPolicy && !checkPriors && !checkAll {
				checkAll = true
			}

			resolver := config.NewResolver(flags.priorsPath, flags.policyPath)
			var problems []string

			if checkPolicy || checkAll {
				pol, src, err := resolver.ResolvePolicy()
				if err != nil {
					problems = append(problems, fmt.Sprintf("policy: %v", err))
				} else if err := pol.Validate(); err != nil {
					problems = append(problems, fmt.Sprintf("policy (%s): %v", src.Resolution, err))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "policy OK (%s%s)\n", src.Resolution, sourcePathSuffix(src))
				}
			}

			if checkPriors || checkAll {
				pr, src, err := resolver.ResolvePriors()
				if err != nil {
					problems = append(problems, fmt.Sprintf("priors: %v", err))
				} else if err := pr.Validate(); err != nil {
					problems = append(problems, fmt.Sprintf("priors (%s): %v", src.Resolution, err))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "priors OK (%s%s)\n", src.Resolution, sourcePathSuffix(src))
				}
			}

			if checkAll {
				if _, err := loadConfig(flags.configPath); err != nil {
					problems = append(problems, fmt.Sprintf("config: %v", err))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "config OK (%s)\n", flags.configPath)
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errExit{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkPolicy, "policy", false, "validate only the resolved policy document")
	cmd.Flags().BoolVar(&checkPriors, "priors", false, "validate only the resolved priors document")
	cmd.Flags().BoolVar(&checkAll, "all", false, "validate config, policy, and priors (default when no other flag is set)")
	return cmd
}

func sourcePathSuffix(src config.ConfigSource) string {
	if src.Path == "" {
		return ""
	}
	return ", " + src.Path
}
