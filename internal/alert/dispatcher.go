package alert

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/policy"
)

// Dispatcher fans call observations out to matching webhooks. It implements
// ledger.Recorder; sends run in the background and never slow the call.
type Dispatcher struct {
	configs    []Config
	policyHash func() string
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
// policyHash may be nil.
func NewDispatcher(configs []Config, policyHash func() string) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{
		configs:    configs,
		policyHash: policyHash,
		logger:     slog.Default().With("component", "alert"),
	}
}

// Record sends obs to every webhook whose outcomes include it.
func (d *Dispatcher) Record(ctx context.Context, obs ledger.Observation) {
	d.Dispatch(EventFor(obs, d.policyHash))
}

// Dispatch sends the event to all webhooks whose Outcomes match.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if !matches(cfg.Outcomes, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			err := Send(context.Background(), cfg, event)
			var derr *DeliveryError
			switch {
			case err == nil:
				d.logger.Debug("alert delivered", "url", cfg.URL, "tool", event.Tool, "outcome", event.Outcome)
			case errors.As(err, &derr):
				d.logger.Warn("alert not delivered",
					"url", cfg.URL,
					"tool", event.Tool,
					"delivery", derr.Delivery,
					"attempts", derr.Attempts,
					"status", derr.StatusCode,
					"error", err,
				)
			default:
				d.logger.Warn("alert not delivered", "url", cfg.URL, "tool", event.Tool, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func matches(outcomes []string, event Event) bool {
	if len(outcomes) == 0 {
		return event.Outcome == string(ledger.OutcomeBlocked)
	}
	return slices.Contains(outcomes, event.Outcome)
}

// EventFor converts an observation into an alert event.
func EventFor(obs ledger.Observation, policyHash func() string) Event {
	ts := obs.Started
	if ts.IsZero() {
		ts = time.Now()
	}
	e := Event{
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		Tool:       obs.Tool,
		Role:       obs.Role,
		Outcome:    string(obs.Outcome()),
		DurationMS: float64(obs.Duration.Microseconds()) / 1000,
	}
	if v, ok := policy.AsViolation(obs.Err); ok {
		e.Rule = v.Rule
	} else if obs.Err != nil {
		e.Error = obs.Err.Error()
	}
	if policyHash != nil {
		e.PolicyHash = policyHash()
	}
	return e
}
