package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/rules"
)

// ErrDegradedReload is returned by Reload when the rule file became
// unusable. The previous engine stays in place.
var ErrDegradedReload = errors.New("reload produced a degraded rule set; keeping previous rules")

// Holder serves policy decisions from an engine that can be swapped while
// calls are in flight. Each call is evaluated against exactly one engine.
type Holder struct {
	path       string
	opts       rules.Options
	engineOpts []policy.Option

	current atomic.Pointer[policy.Engine]

	mu       sync.Mutex
	onSwap   []func(*policy.Engine)
	reloadMu sync.Mutex
	logger   *slog.Logger
}

// NewHolder loads the rule file at path and builds the first engine.
func NewHolder(path string, opts rules.Options, engineOpts ...policy.Option) (*Holder, error) {
	set, err := rules.Load(path, opts)
	if err != nil {
		return nil, err
	}
	h := &Holder{
		path:       path,
		opts:       opts,
		engineOpts: engineOpts,
		logger:     slog.Default().With("component", "holder"),
	}
	h.current.Store(policy.New(set, engineOpts...))
	return h, nil
}

// NewStaticHolder wraps an existing engine. Reload on it is a no-op.
func NewStaticHolder(engine *policy.Engine) *Holder {
	h := &Holder{logger: slog.Default().With("component", "holder")}
	h.current.Store(engine)
	return h
}

// Engine returns the engine currently in use.
func (h *Holder) Engine() *policy.Engine { return h.current.Load() }

// Hash returns the hash of the rule source currently in use.
func (h *Holder) Hash() string { return h.Engine().Hash() }

// Evaluate implements middleware.Evaluator against the current engine.
func (h *Holder) Evaluate(ctx context.Context, call policy.Call) (policy.Verdict, error) {
	return h.Engine().Evaluate(ctx, call)
}

// OnSwap registers fn to run after every successful swap, and once now with
// the current engine.
func (h *Holder) OnSwap(fn func(*policy.Engine)) {
	h.mu.Lock()
	h.onSwap = append(h.onSwap, fn)
	h.mu.Unlock()
	fn(h.Engine())
}

// Reload re-reads the rule file and swaps the engine. A file that fails to
// parse or compile, or that is missing, leaves the current engine in place.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	// Load in strict mode so a vanished file cannot open the firewall
	// mid-flight.
	set, err := rules.Load(h.path, rules.Options{Strict: true})
	if err != nil {
		var degraded *rules.DegradedError
		if errors.As(err, &degraded) {
			return fmt.Errorf("%w: %s", ErrDegradedReload, degraded.Reason)
		}
		return fmt.Errorf("reload rules: %w", err)
	}

	prev := h.Engine()
	if prev != nil && prev.Hash() == set.Hash {
		h.logger.Debug("rule file unchanged", "hash", set.Hash)
		return nil
	}

	next := policy.New(set, h.engineOpts...)
	h.current.Store(next)
	h.logger.Info("rules reloaded", "path", h.path, "rules", len(set.Rules), "hash", set.Hash)

	h.mu.Lock()
	subs := append([]func(*policy.Engine){}, h.onSwap...)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return nil
}
