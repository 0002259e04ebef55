package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/audit"
	"github.com/ppiankov/toolwarden/internal/config"
	"github.com/ppiankov/toolwarden/internal/queue"
	"github.com/ppiankov/toolwarden/internal/rules"
	"github.com/ppiankov/toolwarden/internal/systemd"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := doctorChecks(cmd.Context(), cfg)
	if !printChecks(cmd.OutOrStdout(), checks) {
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

func doctorChecks(ctx context.Context, c *config.Config) []checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	var checks []checkResult

	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{label: "toolwarden binary", ok: true, detail: fmt.Sprintf("%s (v%s)", execPath, version)})
	} else {
		checks = append(checks, checkResult{label: "toolwarden binary", detail: "cannot determine executable path"})
	}

	// Rules must load strictly; a degraded set would leave the firewall open.
	set, err := rules.Load(c.Rules.Path, rules.Options{Strict: true})
	if err != nil {
		checks = append(checks, checkResult{
			label:  "rules",
			detail: err.Error(),
			fix:    "toolwarden init",
		})
	} else {
		checks = append(checks, checkResult{
			label:  "rules",
			ok:     true,
			detail: fmt.Sprintf("%d rules in %s", len(set.Rules), c.Rules.Path),
		})
	}

	if c.Audit.Path != "" {
		if _, err := os.Stat(c.Audit.Path); os.IsNotExist(err) {
			checks = append(checks, checkResult{label: "audit log", ok: true, detail: "not yet written"})
		} else if res := audit.Verify(c.Audit.Path); res.Valid {
			checks = append(checks, checkResult{label: "audit log", ok: true, detail: fmt.Sprintf("chain intact, %d entries", res.Lines)})
		} else {
			checks = append(checks, checkResult{
				label:  "audit log",
				detail: fmt.Sprintf("chain broken at line %d: %s", res.ErrorLine, res.Error),
				fix:    "toolwarden audit verify " + c.Audit.Path,
			})
		}
	}

	if c.Queue.Path != "" {
		checks = append(checks, checkQueue(ctx, c.Queue.Path))
	}

	switch {
	case c.Receipts.MongoURI != "":
		checks = append(checks, checkResult{label: "receipts", ok: true, detail: "mongo " + c.Receipts.Database + "." + c.Receipts.Collection})
	case c.Receipts.Path != "":
		dir := filepath.Dir(c.Receipts.Path)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			checks = append(checks, checkResult{label: "receipts", ok: true, detail: c.Receipts.Path})
		} else {
			checks = append(checks, checkResult{label: "receipts", detail: dir + " missing", fix: "toolwarden init"})
		}
	default:
		checks = append(checks, checkResult{label: "receipts", ok: true, detail: "disabled"})
	}

	if c.Ledger.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.Ledger.RedisAddr, Password: c.Ledger.RedisPassword, DB: c.Ledger.RedisDB})
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			checks = append(checks, checkResult{label: "redis ledger", detail: err.Error()})
		} else {
			checks = append(checks, checkResult{label: "redis ledger", ok: true, detail: c.Ledger.RedisAddr})
		}
	}

	if runtime.GOOS == "linux" {
		if _, err := os.Stat(systemd.UnitPath); err == nil {
			checks = append(checks, checkResult{label: "systemd unit", ok: true, detail: systemd.UnitPath})
		}
	}

	return checks
}

func checkQueue(ctx context.Context, path string) checkResult {
	q, err := queue.Open(path)
	if err != nil {
		return checkResult{label: "ticket queue", detail: err.Error()}
	}
	defer q.Close()
	pending, err := q.Pending(ctx, 0)
	if err != nil {
		return checkResult{label: "ticket queue", detail: err.Error()}
	}
	return checkResult{label: "ticket queue", ok: true, detail: fmt.Sprintf("%s (%d pending)", path, len(pending))}
}

// printChecks writes one line per check and reports whether all passed.
func printChecks(w io.Writer, checks []checkResult) bool {
	ok := true
	for _, c := range checks {
		mark := "✓" // ✓
		if !c.ok {
			mark = "✗" // ✗
			ok = false
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	if !ok {
		fmt.Fprintln(w, "Some checks failed. Run the suggested commands to fix.")
		return false
	}
	fmt.Fprintln(w, "All checks passed.")
	return true
}
