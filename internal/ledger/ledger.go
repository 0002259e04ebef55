// Package ledger counts tool invocations and their latency.
//
// A Recorder receives exactly one Observation per completed call: after the
// tool body returned, failed, or was refused by the firewall. Ledgers are
// injected into the accounting middleware rather than held globally, so a
// process can keep one ledger for its lifetime and another per run.
package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/toolwarden/internal/policy"
)

// Outcome classifies how a call ended.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeBlocked Outcome = "blocked"
)

// Observation is one completed tool call.
type Observation struct {
	Tool     string
	Role     string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Outcome derives the call outcome from Err.
func (o Observation) Outcome() Outcome {
	switch {
	case o.Err == nil:
		return OutcomeOK
	case policy.IsViolation(o.Err):
		return OutcomeBlocked
	default:
		return OutcomeError
	}
}

// Recorder accepts observations. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, obs Observation)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, obs Observation)

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, obs Observation) { f(ctx, obs) }

// Usage maps tool identity to call count.
type Usage map[string]int64

// Total sums all counts.
func (u Usage) Total() int64 {
	var n int64
	for _, c := range u {
		n += c
	}
	return n
}

// Tools returns the tool names in sorted order.
func (u Usage) Tools() []string {
	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type entry struct {
	count int64
	last  time.Duration
}

// Ledger is an in-memory Recorder guarded by a mutex.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
		logger:  slog.Default().With("component", "ledger"),
	}
}

// Record increments the tool's counter and stores the latest duration.
func (l *Ledger) Record(ctx context.Context, obs Observation) {
	l.mu.Lock()
	e, ok := l.entries[obs.Tool]
	if !ok {
		e = &entry{}
		l.entries[obs.Tool] = e
	}
	e.count++
	e.last = obs.Duration
	total := e.count
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "tool call recorded",
		"tool", obs.Tool,
		"outcome", string(obs.Outcome()),
		"duration", obs.Duration,
		"total_calls", total,
	)
}

// Count returns the number of recorded calls for tool.
func (l *Ledger) Count(tool string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[tool]; ok {
		return e.count
	}
	return 0
}

// Last returns the most recent duration recorded for tool.
func (l *Ledger) Last(tool string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[tool]; ok {
		return e.last
	}
	return 0
}

// Snapshot returns a copy of all counters.
func (l *Ledger) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := make(Usage, len(l.entries))
	for name, e := range l.entries {
		u[name] = e.count
	}
	return u
}

// Reset clears all counters.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
}

// Multi fans one observation out to several recorders in order.
// Nil recorders are skipped.
func Multi(recorders ...Recorder) Recorder {
	var rs []Recorder
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return multi(rs)
}

type multi []Recorder

func (m multi) Record(ctx context.Context, obs Observation) {
	for _, r := range m {
		r.Record(ctx, obs)
	}
}
