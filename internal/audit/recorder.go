package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/policy"
)

// Recorder returns a ledger.Recorder that chains every observed call onto l.
// policyHash is called per call so entries follow rule reloads; it may be nil.
// Write failures are logged and never reach the caller.
func Recorder(l *Log, policyHash func() string) ledger.Recorder {
	logger := slog.Default().With("component", "audit")
	return ledger.RecorderFunc(func(ctx context.Context, obs ledger.Observation) {
		if err := l.Record(EntryFor(obs, policyHash)); err != nil {
			logger.Error("audit write failed", "path", l.Path(), "tool", obs.Tool, "error", err)
		}
	})
}

// EntryFor converts an observation into an unchained entry.
func EntryFor(obs ledger.Observation, policyHash func() string) Entry {
	e := Entry{
		CallID:     uuid.NewString(),
		Tool:       obs.Tool,
		Role:       obs.Role,
		Outcome:    string(obs.Outcome()),
		DurationMS: float64(obs.Duration.Microseconds()) / 1000,
	}
	if !obs.Started.IsZero() {
		e.Timestamp = obs.Started.UTC().Format(TimestampFormat)
	}
	if policyHash != nil {
		e.PolicyHash = policyHash()
	}
	if v, ok := policy.AsViolation(obs.Err); ok {
		e.Rule = v.Rule
	} else if obs.Err != nil {
		e.Error = obs.Err.Error()
	}
	return e
}
