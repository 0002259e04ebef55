package policy

import (
	"testing"
	"time"
)

func TestCanonicalRenderer(t *testing.T) {
	type payload struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"no args", "health_check", nil, "health_check"},
		{"sorted keys", "update_ticket",
			map[string]any{"status": "ERROR", "ticket_id": "t1", "result": "ok"},
			"update_ticket result=ok status=ERROR ticket_id=t1"},
		{"scalars", "read_queue",
			map[string]any{"limit": 5, "dry": true, "ratio": 0.5},
			"read_queue dry=true limit=5 ratio=0.5"},
		{"nil value", "t", map[string]any{"x": nil}, "t x=null"},
		{"nested map", "cypher_query",
			map[string]any{"params": map[string]any{"b": 2, "a": "one"}},
			"cypher_query params={a=one b=2}"},
		{"slice", "t", map[string]any{"ids": []string{"1", "2"}}, "t ids=[1 2]"},
		{"slice of any", "t", map[string]any{"v": []any{"x", 1, map[string]any{"k": "v"}}}, "t v=[x 1 {k=v}]"},
		{"struct via json", "t", map[string]any{"p": payload{Kind: "drop", Count: 2}}, "t p={count=2 kind=drop}"},
		{"struct pointer", "t", map[string]any{"p": &payload{Kind: "drop"}}, "t p={count=0 kind=drop}"},
		{"bytes", "t", map[string]any{"content": []byte("DELETE")}, "t content=DELETE"},
		{"stringer", "t",
			map[string]any{"at": time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
			"t at=2026-01-02 03:04:05 +0000 UTC"},
	}

	r := CanonicalRenderer{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Render(tt.tool, tt.args)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCanonicalRendererDeterministic(t *testing.T) {
	args := map[string]any{"z": 1, "a": map[string]any{"y": 1, "b": 2, "m": []int{3, 1}}}
	r := CanonicalRenderer{}
	first := r.Render("tool", args)
	for i := 0; i < 50; i++ {
		if got := r.Render("tool", args); got != first {
			t.Fatalf("render not deterministic: %q vs %q", first, got)
		}
	}
}
