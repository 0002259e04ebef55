package toolset

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/queue"
	"github.com/ppiankov/toolwarden/internal/receipt"
)

func openQueue(t *testing.T) *queue.Store {
	t.Helper()
	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	noop := middleware.Func("noop", func(context.Context, middleware.Args) (any, error) { return nil, nil })

	for _, name := range []string{"b", "a", "c"} {
		if err := r.Register(name, "", noop); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.Names(); len(got) != 3 || got[0] != "b" || got[2] != "c" {
		t.Errorf("expected registration order, got %v", got)
	}
	if err := r.Register("a", "", noop); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register("", "", noop); err == nil {
		t.Error("expected empty name to fail")
	}
	if err := r.Register("d", "", nil); err == nil {
		t.Error("expected nil tool to fail")
	}
	if _, err := r.Lookup("zzz"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
	if tool, err := r.Lookup("a"); err != nil || tool.Name() != "noop" {
		t.Errorf("expected noop tool under a, got %v, %v", tool, err)
	}
}

func TestBuiltinRegistersOnlyConfiguredTools(t *testing.T) {
	r := Builtin(Deps{})
	if got := r.Names(); len(got) != 1 || got[0] != "health_check" {
		t.Fatalf("expected only health_check, got %v", got)
	}

	store, _ := receipt.NewJSONLStore(filepath.Join(t.TempDir(), "r.jsonl"))
	r = Builtin(Deps{Queue: openQueue(t), Receipts: store})
	want := []string{"health_check", "read_queue", "update_ticket", "log_mission_receipt"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tool %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestHealthCheck(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tool, _ := Builtin(Deps{Now: func() time.Time { return fixed }}).Lookup("health_check")

	out, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m["status"] != "ok" || m["time"] != "2026-10-19T12:00:00Z" {
		t.Errorf("unexpected health output %v", m)
	}
}

func TestQueueTools(t *testing.T) {
	q := openQueue(t)
	ctx := context.Background()
	q.Enqueue(ctx, queue.Ticket{ID: "T-1", Title: "one"})
	q.Enqueue(ctx, queue.Ticket{ID: "T-2", Title: "two"})

	r := Builtin(Deps{Queue: q})
	read, _ := r.Lookup("read_queue")
	update, _ := r.Lookup("update_ticket")

	out, err := read.Invoke(ctx, middleware.Args{"limit": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if tickets := out.([]queue.Ticket); len(tickets) != 1 {
		t.Errorf("expected 1 ticket, got %d", len(tickets))
	}

	if _, err := update.Invoke(ctx, middleware.Args{"ticket_id": "T-1", "status": "COMPLETE", "result": "done"}); err != nil {
		t.Fatal(err)
	}
	out, _ = read.Invoke(ctx, middleware.Args{})
	if tickets := out.([]queue.Ticket); len(tickets) != 1 || tickets[0].ID != "T-2" {
		t.Errorf("expected only T-2 pending, got %+v", tickets)
	}

	_, err = update.Invoke(ctx, middleware.Args{"ticket_id": "nope", "status": "COMPLETE"})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = update.Invoke(ctx, middleware.Args{"status": "COMPLETE"})
	var argErr *ArgError
	if !errors.As(err, &argErr) || argErr.Name != "ticket_id" {
		t.Errorf("expected ArgError for ticket_id, got %v", err)
	}

	_, err = update.Invoke(ctx, middleware.Args{
		"ticket_id": "T-2",
		"status":    "ERROR",
		"result":    map[string]any{"msg": "disk full"},
	})
	if !errors.As(err, &argErr) || argErr.Name != "result" {
		t.Errorf("expected ArgError for non-string result, got %v", err)
	}
	if tk, _ := q.Get(ctx, "T-2"); tk.Status == "ERROR" {
		t.Errorf("ticket updated despite rejected result: %+v", tk)
	}

	_, err = read.Invoke(ctx, middleware.Args{"limit": 2.5})
	if !errors.As(err, &argErr) {
		t.Errorf("expected ArgError for fractional limit, got %v", err)
	}
}

func TestLogMissionReceipt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	store, err := receipt.NewJSONLStore(path)
	if err != nil {
		t.Fatal(err)
	}
	tool, _ := Builtin(Deps{Receipts: store}).Lookup("log_mission_receipt")

	out, err := tool.Invoke(context.Background(), middleware.Args{"receipt": map[string]any{
		"ticket_id":  "T-1",
		"spoke_id":   "spoke-1",
		"profile":    "triage",
		"start_time": "2026-10-19T08:00:00Z",
		"end_time":   "2026-10-19T08:05:00Z",
		"tool_usage": map[string]any{"read_queue": float64(2)},
		"status":     "SUCCESS",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if m := out.(map[string]any); m["id"] == "" || m["status"] != "SUCCESS" {
		t.Errorf("unexpected output %v", m)
	}

	_, saved, err := store.ReadAll()
	if err != nil || len(saved) != 1 || saved[0].ToolUsage["read_queue"] != 2 {
		t.Fatalf("expected one saved receipt, got %+v, %v", saved, err)
	}

	if _, err := tool.Invoke(context.Background(), middleware.Args{"receipt": "nope"}); err == nil {
		t.Error("expected error for non-object receipt")
	}
	if _, err := tool.Invoke(context.Background(), middleware.Args{"receipt": map[string]any{
		"start_time": "2026-10-19T08:05:00Z",
		"end_time":   "2026-10-19T08:00:00Z",
		"status":     "SUCCESS",
	}}); !errors.Is(err, receipt.ErrTimeOrder) {
		t.Errorf("expected ErrTimeOrder, got %v", err)
	}
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		in      any
		want    int
		wantErr bool
	}{
		{nil, 10, false},
		{3, 3, false},
		{int64(4), 4, false},
		{float64(5), 5, false},
		{"6", 6, false},
		{"x", 0, true},
		{1.5, 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		args := middleware.Args{}
		if tt.in != nil {
			args["n"] = tt.in
		}
		got, err := IntArg(args, "n", 10)
		if (err != nil) != tt.wantErr {
			t.Errorf("IntArg(%v): unexpected error state %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("IntArg(%v): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}
