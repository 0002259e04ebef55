package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/toolwarden/internal/ledger"
)

// Account records one observation per completed call into rec: after
// success, after failure, after a refusal by an inner Authorize, and after a
// panic (which is then re-raised).
func Account(rec ledger.Recorder) Middleware {
	return func(next Tool) Tool {
		return Wrap(next, func(ctx context.Context, args Args) (result any, err error) {
			obs := ledger.Observation{
				Tool:    ToolName(ctx, next),
				Role:    RoleFrom(ctx),
				Started: time.Now(),
			}
			defer func() {
				obs.Duration = time.Since(obs.Started)
				obs.Err = err
				if p := recover(); p != nil {
					obs.Err = fmt.Errorf("panic: %v", p)
					rec.Record(ctx, obs)
					panic(p)
				}
				rec.Record(ctx, obs)
			}()
			return next.Invoke(ctx, args)
		})
	}
}

// Standard returns the production middleware order: accounting outermost,
// authorization around the tool body.
func Standard(engine Evaluator, rec ledger.Recorder) []Middleware {
	return []Middleware{Account(rec), Authorize(engine)}
}
