package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/mission"
	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/queue"
	"github.com/ppiankov/toolwarden/internal/receipt"
	"github.com/ppiankov/toolwarden/internal/rules"
	"github.com/ppiankov/toolwarden/internal/toolset"
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.AddCommand(demoMissionCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run demonstration scenarios",
}

var demoMissionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Run a mission that tries to delete a file (the delete must be blocked)",
	RunE:  runMissionDemo,
}

func runMissionDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== toolwarden Mission Demo ===")
	fmt.Fprintln(out, "Purpose: prove the firewall stops a destructive call before it runs.")
	fmt.Fprintln(out)

	tmpDir, err := os.MkdirTemp("", "toolwarden-demo-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	q, err := queue.Open(filepath.Join(tmpDir, "queue.db"))
	if err != nil {
		return err
	}
	defer q.Close()
	ticketID, err := q.Enqueue(ctx, queue.Ticket{Title: "Clean up scratch data", Body: "Remove /tmp/scratch.csv"})
	if err != nil {
		return err
	}

	set, err := rules.Parse([]byte(rules.DefaultYAML()))
	if err != nil {
		return err
	}
	store, err := receipt.NewJSONLStore(filepath.Join(tmpDir, "receipts.jsonl"))
	if err != nil {
		return err
	}

	deleted := false
	tools := toolset.Builtin(toolset.Deps{Queue: q, Receipts: store})
	tools.MustRegister("delete_file", "Delete a file.", middleware.Func("delete_file", func(ctx context.Context, args middleware.Args) (any, error) {
		deleted = true
		return "deleted", nil
	}))

	process := ledger.New()
	runner := &mission.Runner{
		Engine: policy.New(set),
		Tools:  tools,
		Shared: process,
		Store:  store,
		Role:   policy.DefaultRole,
	}

	step := func(name string, err error) {
		switch {
		case err == nil:
			fmt.Fprintf(out, "  ✓ %s → allowed\n", name)
		case policy.IsViolation(err):
			fmt.Fprintf(out, "  ✗ %s → BLOCKED (%v)\n", name, err)
		default:
			fmt.Fprintf(out, "  ! %s → error (%v)\n", name, err)
		}
	}

	rec, runErr := runner.Run(ctx, receipt.Metadata{TicketID: ticketID, SpokeID: "demo", Profile: "cleanup"},
		func(ctx context.Context, tb *mission.Toolbox) (string, error) {
			tb.AddTokens(1200, 300)
			_, err := tb.Call(ctx, "read_queue", middleware.Args{"limit": 5})
			step("read_queue", err)
			if err != nil {
				return "", err
			}
			_, err = tb.Call(ctx, "update_ticket", middleware.Args{"ticket_id": ticketID, "status": queue.StatusProcessing})
			step("update_ticket", err)
			if err != nil {
				return "", err
			}
			_, err = tb.Call(ctx, "delete_file", middleware.Args{"path": "/tmp/scratch.csv"})
			step("delete_file", err)
			if err != nil {
				return "", err
			}
			return "scratch data removed", nil
		})
	if runErr != nil && !policy.IsViolation(runErr) {
		return runErr
	}
	fmt.Fprintln(out)

	data, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Fprintln(out, "Receipt:")
	fmt.Fprintln(out, string(data))
	fmt.Fprintln(out)

	// CI gate: the delete MUST be blocked
	if deleted || rec.Status != receipt.StatusBlocked {
		fmt.Fprintln(out, "FAIL: delete_file was NOT blocked. The firewall is open.")
		os.Exit(1)
	}
	fmt.Fprintln(out, "PASS: delete_file blocked and counted. Enforcement verified.")
	return nil
}
