package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/processtriage/pttriage/internal/fleet"
)

// newFleetCmd groups commands that reach beyond the local host: SSH-driven
// remote scans. The gossip transport (internal/gossip, api/gossip/v1) runs
// as part of the daemon rather than through a one-shot CLI invocation, so it
// has no subcommand here.
func newFleetCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Scan remote hosts over SSH",
	}
	cmd.AddCommand(newFleetScanCmd(flags))
	return cmd
}

func newFleetScanCmd(flags *globalFlags) *cobra.Command {
	var hosts string
	var user, identityFile string
	var port, parallel int
	var connectTimeout, commandTimeout time.Duration
	var stopOnError bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a list of remote hosts via ssh '<binary> scan --format json'",
		RunE: func(cmd *cobra.Command, args []string) error {
			hostList := splitHosts(hosts)
			if len(hostList) == 0 {
				return errExit{code: 2}
			}

			cfg := fleet.DefaultSSHScanConfig()
			cfg.User = user
			cfg.IdentityFile = identityFile
			cfg.Port = port
			if connectTimeout > 0 {
				cfg.ConnectTimeout = connectTimeout
			}
			if commandTimeout > 0 {
				cfg.CommandTimeout = commandTimeout
			}
			if parallel > 0 {
				cfg.Parallel = parallel
			}
			cfg.ContinueOnError = !stopOnError

			result := fleet.ScanFleet(cmd.Context(), hostList, cfg)

			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if result.Failed > 0 {
				return errExit{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hosts, "hosts", "", "comma-separated list of hosts to scan")
	cmd.Flags().StringVar(&user, "user", "", "ssh user (default: current user)")
	cmd.Flags().StringVar(&identityFile, "identity-file", "", "ssh identity file")
	cmd.Flags().IntVar(&port, "port", 0, "ssh port (default: 22)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "max concurrent ssh connections (default: 10)")
	cmd.Flags().DurationVar(&connectTimeout, "connect-timeout", 0, "ssh connection timeout")
	cmd.Flags().DurationVar(&commandTimeout, "command-timeout", 0, "total time budget per host scan")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop starting new host scans after the first failure")
	_ = cmd.MarkFlagRequired("hosts")

	return cmd
}

func splitHosts(hosts string) []string {
	var out []string
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
