// Package receipt assembles the end-of-run record of what an automated run did.
package receipt

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/policy"
)

// Status is how a run terminated.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusBlocked Status = "BLOCKED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// StatusFor derives the run status from the error that ended it:
// nil is SUCCESS, a policy violation is BLOCKED, anything else is FAILED.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case policy.IsViolation(err):
		return StatusBlocked
	default:
		return StatusFailed
	}
}

// Metadata describes the run a receipt is for.
type Metadata struct {
	TicketID     string
	SpokeID      string
	Profile      string
	StartTime    time.Time
	EndTime      time.Time
	TokensInput  int64
	TokensOutput int64
}

// Receipt is the immutable end-of-run record. Field names match the
// persisted document.
type Receipt struct {
	TicketID       string           `json:"ticket_id" bson:"ticket_id"`
	SpokeID        string           `json:"spoke_id" bson:"spoke_id"`
	Profile        string           `json:"profile" bson:"profile"`
	StartTime      time.Time        `json:"start_time" bson:"start_time"`
	EndTime        time.Time        `json:"end_time" bson:"end_time"`
	TokensInput    int64            `json:"tokens_input" bson:"tokens_input"`
	TokensOutput   int64            `json:"tokens_output" bson:"tokens_output"`
	ToolUsage      map[string]int64 `json:"tool_usage" bson:"tool_usage"`
	Status         Status           `json:"status" bson:"status"`
	OutcomeSummary *string          `json:"outcome_summary" bson:"outcome_summary"`
}

// Usage returns a copy of the per-tool call counts.
func (r Receipt) Usage() ledger.Usage {
	return ledger.Usage(maps.Clone(r.ToolUsage))
}

// Summary returns the outcome summary, or "" when none was given.
func (r Receipt) Summary() string {
	if r.OutcomeSummary == nil {
		return ""
	}
	return *r.OutcomeSummary
}

var (
	ErrTimeOrder      = errors.New("receipt: end_time before start_time")
	ErrNegativeTokens = errors.New("receipt: token counts must be >= 0")
)

// Assemble builds a receipt from run metadata and a ledger snapshot. It
// performs no I/O and copies every reference it is given, so the same
// inputs always produce an equal receipt and later changes to usage or
// summary do not reach it. Times are normalized to UTC at millisecond
// precision, the resolution of the document store.
func Assemble(meta Metadata, usage ledger.Usage, status Status, summary *string) (Receipt, error) {
	if meta.EndTime.Before(meta.StartTime) {
		return Receipt{}, ErrTimeOrder
	}
	if meta.TokensInput < 0 || meta.TokensOutput < 0 {
		return Receipt{}, ErrNegativeTokens
	}
	if !status.Valid() {
		return Receipt{}, fmt.Errorf("receipt: unknown status %q", status)
	}

	toolUsage := make(map[string]int64, len(usage))
	for tool, n := range usage {
		toolUsage[tool] = n
	}

	var sum *string
	if summary != nil {
		s := *summary
		sum = &s
	}

	return Receipt{
		TicketID:       meta.TicketID,
		SpokeID:        meta.SpokeID,
		Profile:        meta.Profile,
		StartTime:      meta.StartTime.UTC().Truncate(time.Millisecond),
		EndTime:        meta.EndTime.UTC().Truncate(time.Millisecond),
		TokensInput:    meta.TokensInput,
		TokensOutput:   meta.TokensOutput,
		ToolUsage:      toolUsage,
		Status:         status,
		OutcomeSummary: sum,
	}, nil
}
