package middleware

import (
	"context"

	"github.com/ppiankov/toolwarden/internal/policy"
)

// Evaluator renders a verdict for a proposed call. *policy.Engine implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, call policy.Call) (policy.Verdict, error)
}

// Authorize checks each call against the firewall before the body runs.
// A refused call never reaches the body and fails with the *policy.Violation.
func Authorize(engine Evaluator) Middleware {
	return func(next Tool) Tool {
		return Wrap(next, func(ctx context.Context, args Args) (any, error) {
			call := policy.Call{
				Tool: ToolName(ctx, next),
				Args: args,
				Role: RoleFrom(ctx),
			}
			if _, err := engine.Evaluate(ctx, call); err != nil {
				return nil, err
			}
			return next.Invoke(ctx, args)
		})
	}
}
