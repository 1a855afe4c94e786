package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/processtriage/pttriage/internal/collect"
)

// scanResult is the wire shape for both the `scan` command's own output and
// a remote host's reply over the fleet SSH transport: {schema_version,
// session_id, scan: {...}}. A bare collect.Record list (no envelope) is
// still accepted by anything parsing this for backward compatibility since
// it's just the "scan" field's contents.
type scanResult struct {
	SchemaVersion string           `json:"schema_version"`
	SessionID     string           `json:"session_id"`
	Scan          []collect.Record `json:"scan"`
}

func newScanCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the live process table and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			procRoot := flags.procRoot
			if procRoot == "" {
				procRoot = "/proc"
			}

			log, err := newBareLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			scanner := collect.NewScanner(procRoot, readBootIDForScan(procRoot), 100, log, 4096)
			records, err := scanner.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}

			result := scanResult{
				SchemaVersion: "1.0.0",
				SessionID:     uuid.NewString(),
			}
			for rec := range records {
				result.Scan = append(result.Scan, rec)
			}

			return printScanResult(cmd, result, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func printScanResult(cmd *cobra.Command, result scanResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d processes observed\n", result.SessionID, len(result.Scan))
	for _, rec := range result.Scan {
		fmt.Fprintf(cmd.OutOrStdout(), "  pid=%-8d ppid=%-8d state=%c cmd=%s\n", rec.Identity.PID, rec.PPID, rec.State, rec.Cmdline)
	}
	return nil
}

// readBootIDForScan mirrors orchestrator.readBootID's fallback behavior
// without pulling in the orchestrator package for the standalone scan path.
func readBootIDForScan(procRoot string) string {
	raw, err := os.ReadFile(procRoot + "/sys/kernel/random/boot_id")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(raw))
}
