// Package mission runs one unit of agent work behind the firewall and
// produces its receipt.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/receipt"
	"github.com/ppiankov/toolwarden/internal/toolset"
)

// Work is the body of a run. It calls tools through tb and returns an
// optional outcome summary. Returning a *policy.Violation (possibly wrapped)
// marks the run BLOCKED.
type Work func(ctx context.Context, tb *Toolbox) (summary string, err error)

// Runner executes runs. Every run gets its own ledger, so a receipt only
// counts calls made by that run; Shared additionally sees every call.
type Runner struct {
	Engine middleware.Evaluator
	Tools  *toolset.Registry
	// Shared receives every observation from every run (process ledger,
	// metrics, audit). Optional.
	Shared ledger.Recorder
	// Store persists receipts. Optional.
	Store receipt.Store
	// Role is the caller role for calls made by runs. Empty means the
	// policy default.
	Role  string
	Clock func() time.Time
}

// Run executes work and returns its receipt. The returned error is work's
// error joined with any failure to persist the receipt; the receipt is valid
// in both cases.
func (r *Runner) Run(ctx context.Context, meta receipt.Metadata, work Work) (receipt.Receipt, error) {
	if r.Engine == nil || r.Tools == nil {
		return receipt.Receipt{}, errors.New("mission: runner needs an engine and a tool registry")
	}
	now := r.Clock
	if now == nil {
		now = time.Now
	}
	logger := slog.Default().With("component", "mission", "ticket_id", meta.TicketID, "spoke_id", meta.SpokeID)

	runLedger := ledger.New()
	tb := &Toolbox{
		tools: r.Tools,
		chain: middleware.Standard(r.Engine, ledger.Multi(runLedger, r.Shared)),
		role:  r.Role,
	}

	if meta.StartTime.IsZero() {
		meta.StartTime = now()
	}
	logger.InfoContext(ctx, "run started", "profile", meta.Profile)

	summary, workErr := work(ctx, tb)

	meta.EndTime = now()
	in, out := tb.Tokens()
	meta.TokensInput += in
	meta.TokensOutput += out

	var sum *string
	if summary != "" {
		sum = &summary
	}
	status := receipt.StatusFor(workErr)
	rec, err := receipt.Assemble(meta, runLedger.Snapshot(), status, sum)
	if err != nil {
		return receipt.Receipt{}, errors.Join(workErr, fmt.Errorf("mission: assemble receipt: %w", err))
	}

	logger.InfoContext(ctx, "run finished",
		"status", string(status),
		"tool_calls", rec.Usage().Total(),
		"duration", rec.EndTime.Sub(rec.StartTime),
	)

	if r.Store != nil {
		id, err := r.Store.Save(ctx, rec)
		if err != nil {
			logger.ErrorContext(ctx, "receipt not saved", "error", err)
			return rec, errors.Join(workErr, fmt.Errorf("mission: save receipt: %w", err))
		}
		logger.InfoContext(ctx, "receipt saved", "receipt_id", id)
	}
	return rec, workErr
}

// Toolbox is how work calls tools during one run.
type Toolbox struct {
	tools *toolset.Registry
	chain []middleware.Middleware
	role  string

	mu        sync.Mutex
	tokensIn  int64
	tokensOut int64
}

// Call invokes the tool registered as name through the firewall and the
// run's accounting. The registered name is the identity seen by both.
func (tb *Toolbox) Call(ctx context.Context, name string, args middleware.Args) (any, error) {
	tool, err := tb.tools.Lookup(name)
	if err != nil {
		return nil, err
	}
	ctx = middleware.WithToolName(ctx, name)
	if tb.role != "" {
		ctx = middleware.WithRole(ctx, tb.role)
	}
	return middleware.Chain(tool, tb.chain...).Invoke(ctx, args)
}

// AddTokens adds model token usage to the run's receipt. Negative values
// are ignored.
func (tb *Toolbox) AddTokens(in, out int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if in > 0 {
		tb.tokensIn += in
	}
	if out > 0 {
		tb.tokensOut += out
	}
}

// Tokens returns the token totals added so far.
func (tb *Toolbox) Tokens() (in, out int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokensIn, tb.tokensOut
}
