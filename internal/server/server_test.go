package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/rules"
)

const blockDelete = `
rules:
  - name: "No Deletion"
    pattern: "DELETE"
    action: BLOCK
`

const blockDrop = `
rules:
  - name: "No Drops"
    pattern: "DROP"
    action: BLOCK
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func deleteCall() policy.Call {
	return policy.Call{Tool: "delete_file", Args: map[string]any{"path": "/x"}, Role: "USER"}
}

func dropCall() policy.Call {
	return policy.Call{Tool: "run_sql", Args: map[string]any{"q": "DROP TABLE t"}, Role: "USER"}
}

func TestHolderReloadSwapsEngine(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", blockDelete)
	h, err := NewHolder(path, rules.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := h.Evaluate(ctx, deleteCall()); !policy.IsViolation(err) {
		t.Fatalf("expected delete blocked before reload, got %v", err)
	}
	if _, err := h.Evaluate(ctx, dropCall()); err != nil {
		t.Fatalf("expected drop allowed before reload, got %v", err)
	}
	before := h.Hash()

	var swaps atomic.Int64
	h.OnSwap(func(*policy.Engine) { swaps.Add(1) })

	os.WriteFile(path, []byte(blockDrop), 0644)
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, err := h.Evaluate(ctx, deleteCall()); err != nil {
		t.Errorf("expected delete allowed after reload, got %v", err)
	}
	if _, err := h.Evaluate(ctx, dropCall()); !policy.IsViolation(err) {
		t.Errorf("expected drop blocked after reload, got %v", err)
	}
	if h.Hash() == before {
		t.Error("expected hash to change after reload")
	}
	if swaps.Load() != 2 {
		t.Errorf("expected OnSwap to fire on register and on reload, got %d", swaps.Load())
	}

	// Unchanged content does not swap.
	if err := h.Reload(); err != nil {
		t.Fatal(err)
	}
	if swaps.Load() != 2 {
		t.Errorf("expected no swap for unchanged file, got %d", swaps.Load())
	}
}

func TestHolderReloadKeepsRulesOnBadFile(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", blockDelete)
	h, err := NewHolder(path, rules.Options{})
	if err != nil {
		t.Fatal(err)
	}
	hash := h.Hash()

	os.WriteFile(path, []byte("rules:\n  - name: broken\n    pattern: \"(\"\n    action: BLOCK\n"), 0644)
	var ruleErr *rules.RuleError
	if err := h.Reload(); !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %v", err)
	}

	os.Remove(path)
	if err := h.Reload(); !errors.Is(err, ErrDegradedReload) {
		t.Fatalf("expected ErrDegradedReload, got %v", err)
	}

	if h.Hash() != hash {
		t.Error("expected previous rules to stay active")
	}
	if _, err := h.Evaluate(context.Background(), deleteCall()); !policy.IsViolation(err) {
		t.Errorf("expected delete still blocked, got %v", err)
	}
}

func TestHolderStartsDegradedOnMissingFile(t *testing.T) {
	h, err := NewHolder(filepath.Join(t.TempDir(), "missing.yaml"), rules.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !h.Engine().Rules().Degraded {
		t.Error("expected degraded rule set")
	}

	if _, err := NewHolder(filepath.Join(t.TempDir(), "missing.yaml"), rules.Options{Strict: true}); err == nil {
		t.Error("expected strict load of missing file to fail")
	}
}

func TestConcurrentEvaluationsDuringReload(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", blockDelete)
	h, err := NewHolder(path, rules.Options{})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v, err := h.Evaluate(context.Background(), deleteCall())
				if err != nil && v.Rule != "No Deletion" {
					t.Errorf("unexpected verdict %+v", v)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		content := blockDelete
		if i%2 == 0 {
			content = blockDrop
		}
		os.WriteFile(path, []byte(content), 0644)
		h.Reload()
	}
	close(stop)
	wg.Wait()
}

func TestReloaderTriggersOnWrite(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", blockDelete)
	h, err := NewHolder(path, rules.Options{})
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewReloader(h.Reload, path, "")
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	r.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	os.WriteFile(path, []byte(blockDrop), 0644)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := h.Evaluate(context.Background(), dropCall()); policy.IsViolation(err) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected rules to reload after file write")
}

func TestGRPCHealthReportsRuleState(t *testing.T) {
	h, err := NewHolder(filepath.Join(t.TempDir(), "missing.yaml"), rules.Options{})
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Config{}, h, prometheus.NewRegistry())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeGRPC(lis)
	defer srv.Shutdown()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected overall SERVING, got %s", resp.Status)
	}

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: RulesService})
	if err != nil {
		t.Fatalf("Check rules: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected degraded rules NOT_SERVING, got %s", resp.Status)
	}
}

func TestHTTPHealthzAndMetrics(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", blockDelete)
	h, err := NewHolder(path, rules.Options{})
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Config{Metrics: true}, h, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"rules":1`) {
		t.Errorf("unexpected healthz %d %s", resp.StatusCode, body)
	}

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "toolwarden_rules_loaded 1") {
		t.Errorf("expected rules gauge in metrics, got:\n%s", body)
	}
}

func TestHTTPHealthzDegraded(t *testing.T) {
	h, _ := NewHolder(filepath.Join(t.TempDir(), "missing.yaml"), rules.Options{})
	srv := New(Config{}, h, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 503 || !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("expected 503 degraded, got %d %s", rec.Code, rec.Body.String())
	}
}
