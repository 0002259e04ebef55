package toolwarden

import (
	"context"
	"fmt"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/receipt"
	"github.com/ppiankov/toolwarden/internal/rules"
)

// Client holds the firewall and the usage ledger for in-process enforcement.
// Safe for concurrent tool calls.
type Client struct {
	cfg      clientConfig
	engine   *policy.Engine
	ledger   *ledger.Ledger
	recorder ledger.Recorder
}

// New creates a Client with the given options. With no rules configured the
// client allows every call.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{role: policy.DefaultRole}
	for _, o := range opts {
		o(&cfg)
	}

	var (
		set *rules.Set
		err error
	)
	switch {
	case cfg.rulesYAML != nil:
		set, err = rules.Parse(cfg.rulesYAML)
	case cfg.rulesPath != "":
		set, err = rules.Load(cfg.rulesPath, rules.Options{Strict: cfg.strict})
	default:
		set = rules.Empty()
	}
	if err != nil {
		return nil, fmt.Errorf("toolwarden: failed to load rules: %w", err)
	}

	l := ledger.New()
	return &Client{
		cfg:      cfg,
		engine:   policy.New(set),
		ledger:   l,
		recorder: ledger.Multi(append([]ledger.Recorder{l}, cfg.recorders...)...),
	}, nil
}

// Check evaluates a call without executing or counting anything.
func (c *Client) Check(ctx context.Context, call Call) Result {
	role := call.Role
	if role == "" {
		role = c.cfg.role
	}
	// The engine only fails with a violation, and the verdict carries it.
	v, _ := c.engine.Evaluate(ctx, policy.Call{Tool: call.Tool, Args: call.Args, Role: role})
	return toResult(v)
}

// RulesHash identifies the loaded rule source.
func (c *Client) RulesHash() string { return c.engine.Hash() }

// Usage returns per-tool call counts since New or the last Reset.
func (c *Client) Usage() map[string]int64 {
	return c.ledger.Snapshot()
}

// Reset clears the usage counts, typically between runs.
func (c *Client) Reset() { c.ledger.Reset() }

// Receipt builds the receipt for run from the current usage. runErr is the
// run's outcome: nil is SUCCESS, a blocked call is BLOCKED, anything else
// FAILED. An empty summary is recorded as absent.
func (c *Client) Receipt(run Run, runErr error, summary string) (Receipt, error) {
	var sum *string
	if summary != "" {
		sum = &summary
	}
	return receipt.Assemble(run, c.ledger.Snapshot(), receipt.StatusFor(runErr), sum)
}
