package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/audit"
)

var (
	tailLines   int
	tailTool    string
	tailOutcome string
	tailSince   time.Duration
	tailFormat  string
	tailSummary bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show (0 = all)")
	auditTailCmd.Flags().StringVar(&tailTool, "tool", "", "Only show calls to this tool")
	auditTailCmd.Flags().StringVar(&tailOutcome, "outcome", "", "Only show this outcome (ok|error|blocked)")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only show entries newer than this (e.g. 1h)")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "table", "Output format (table|json)")
	auditTailCmd.Flags().BoolVar(&tailSummary, "summary", false, "Print per-tool and per-outcome totals")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained call log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Long:  "Reads the last N matching entries from the JSONL audit log.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

func auditPathArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfg.Audit.Path == "" {
		return "", fmt.Errorf("no audit log: pass a path or set audit.path")
	}
	return cfg.Audit.Path, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPathArg(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPathArg(args)
	if err != nil {
		return err
	}
	filter := audit.Filter{
		Tool:    tailTool,
		Outcome: strings.ToLower(tailOutcome),
		Last:    tailLines,
	}
	if tailSince > 0 {
		filter.Since = time.Now().Add(-tailSince)
	}

	entries, err := audit.Read(path, filter)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch tailFormat {
	case "json":
		out, err := audit.FormatJSON(entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	default:
		fmt.Fprint(w, audit.FormatTable(entries))
	}
	if tailSummary {
		fmt.Fprintln(w)
		fmt.Fprint(w, audit.FormatSummary(audit.Summarize(entries)))
	}
	return nil
}
