package mission

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/receipt"
	"github.com/ppiankov/toolwarden/internal/rules"
	"github.com/ppiankov/toolwarden/internal/toolset"
)

type fixture struct {
	runner  *Runner
	deletes atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	set, err := rules.New(rules.Rule{
		Name:       "No Deletion",
		Pattern:    "DELETE",
		Action:     rules.ActionBlock,
		Exceptions: []rules.Exception{{Role: "ADMIN"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{}
	reg := toolset.NewRegistry()
	reg.MustRegister("read_queue", "", middleware.Func("read_queue", func(context.Context, middleware.Args) (any, error) {
		return []string{"T-1"}, nil
	}))
	reg.MustRegister("delete_file", "", middleware.Func("delete_file", func(context.Context, middleware.Args) (any, error) {
		f.deletes.Add(1)
		return "deleted", nil
	}))
	reg.MustRegister("flaky", "", middleware.Func("flaky", func(context.Context, middleware.Args) (any, error) {
		return nil, errors.New("backend unavailable")
	}))

	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	tick := 0
	f.runner = &Runner{
		Engine: policy.New(set),
		Tools:  reg,
		Clock: func() time.Time {
			tick++
			return start.Add(time.Duration(tick) * time.Minute)
		},
	}
	return f
}

func meta() receipt.Metadata {
	return receipt.Metadata{TicketID: "T-1", SpokeID: "spoke-1", Profile: "triage"}
}

func TestRunBlockedMission(t *testing.T) {
	f := newFixture(t)

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		if _, err := tb.Call(ctx, "delete_file", middleware.Args{"path": "/tmp/x"}); err != nil {
			return "", err
		}
		return "unreachable", nil
	})

	if !policy.IsViolation(err) {
		t.Fatalf("expected violation from run, got %v", err)
	}
	if rec.Status != receipt.StatusBlocked {
		t.Errorf("expected BLOCKED, got %s", rec.Status)
	}
	if len(rec.ToolUsage) != 1 || rec.ToolUsage["delete_file"] != 1 {
		t.Errorf("expected delete_file=1 only, got %v", rec.ToolUsage)
	}
	if rec.OutcomeSummary != nil {
		t.Errorf("expected no summary, got %q", *rec.OutcomeSummary)
	}
	if f.deletes.Load() != 0 {
		t.Error("blocked tool body must not run")
	}
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		for i := 0; i < 3; i++ {
			if _, err := tb.Call(ctx, "read_queue", middleware.Args{"limit": 5}); err != nil {
				return "", err
			}
		}
		tb.AddTokens(120, 30)
		tb.AddTokens(-5, 10)
		return "triaged 3 tickets", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != receipt.StatusSuccess || rec.Summary() != "triaged 3 tickets" {
		t.Errorf("unexpected receipt %+v", rec)
	}
	if rec.ToolUsage["read_queue"] != 3 {
		t.Errorf("expected read_queue=3, got %v", rec.ToolUsage)
	}
	if rec.TokensInput != 120 || rec.TokensOutput != 40 {
		t.Errorf("expected tokens 120/40, got %d/%d", rec.TokensInput, rec.TokensOutput)
	}
	if !rec.EndTime.After(rec.StartTime) {
		t.Errorf("expected end after start: %s, %s", rec.StartTime, rec.EndTime)
	}
}

func TestRunFailedToolCountsAndFails(t *testing.T) {
	f := newFixture(t)

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		_, err := tb.Call(ctx, "flaky", nil)
		return "", err
	})
	if err == nil || policy.IsViolation(err) {
		t.Fatalf("expected plain failure, got %v", err)
	}
	if rec.Status != receipt.StatusFailed || rec.ToolUsage["flaky"] != 1 {
		t.Errorf("unexpected receipt %+v", rec)
	}
}

func TestRunRoleExemption(t *testing.T) {
	f := newFixture(t)
	f.runner.Role = "ADMIN"

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		_, err := tb.Call(ctx, "delete_file", middleware.Args{"path": "/tmp/x"})
		return "", err
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != receipt.StatusSuccess || f.deletes.Load() != 1 {
		t.Errorf("expected ADMIN delete to run, got %+v", rec)
	}
}

func TestRunUnknownToolNotCounted(t *testing.T) {
	f := newFixture(t)

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		_, err := tb.Call(ctx, "launch_rockets", nil)
		return "", err
	})
	if !errors.Is(err, toolset.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if rec.Status != receipt.StatusFailed || len(rec.ToolUsage) != 0 {
		t.Errorf("unexpected receipt %+v", rec)
	}
}

func TestRunsAreIsolatedButShareProcessLedger(t *testing.T) {
	f := newFixture(t)
	shared := ledger.New()
	f.runner.Shared = shared

	work := func(ctx context.Context, tb *Toolbox) (string, error) {
		_, err := tb.Call(ctx, "read_queue", nil)
		return "", err
	}
	first, _ := f.runner.Run(context.Background(), meta(), work)
	second, _ := f.runner.Run(context.Background(), meta(), work)

	if first.ToolUsage["read_queue"] != 1 || second.ToolUsage["read_queue"] != 1 {
		t.Errorf("expected each run to count only its own calls, got %v and %v", first.ToolUsage, second.ToolUsage)
	}
	if shared.Count("read_queue") != 2 {
		t.Errorf("expected shared ledger to see 2 calls, got %d", shared.Count("read_queue"))
	}
}

func TestRunSavesReceipt(t *testing.T) {
	f := newFixture(t)
	store, err := receipt.NewJSONLStore(filepath.Join(t.TempDir(), "receipts.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	f.runner.Store = store

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		return "", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_, saved, err := store.ReadAll()
	if err != nil || len(saved) != 1 {
		t.Fatalf("expected one saved receipt, got %d, %v", len(saved), err)
	}
	if saved[0].TicketID != rec.TicketID || saved[0].Status != receipt.StatusSuccess {
		t.Errorf("unexpected saved receipt %+v", saved[0])
	}
}

type failingStore struct{}

func (failingStore) Save(context.Context, receipt.Receipt) (string, error) {
	return "", errors.New("disk full")
}

func TestRunSaveFailureStillReturnsReceipt(t *testing.T) {
	f := newFixture(t)
	f.runner.Store = failingStore{}

	rec, err := f.runner.Run(context.Background(), meta(), func(ctx context.Context, tb *Toolbox) (string, error) {
		return "ok", nil
	})
	if err == nil {
		t.Fatal("expected save error")
	}
	if rec.Status != receipt.StatusSuccess || rec.Summary() != "ok" {
		t.Errorf("expected receipt despite save failure, got %+v", rec)
	}
}

func TestRunRequiresEngineAndTools(t *testing.T) {
	r := &Runner{}
	if _, err := r.Run(context.Background(), meta(), nil); err == nil {
		t.Fatal("expected error for empty runner")
	}
}
