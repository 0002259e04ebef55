package toolwarden

import (
	"context"

	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/policy"
)

// ToolFunc is the function signature that Wrap guards.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Wrap returns a ToolFunc that checks every call against the rules before
// calling fn, and counts it under name whether it runs or not.
// A blocked call returns a *BlockedError without calling fn.
func (c *Client) Wrap(name string, fn ToolFunc, opts ...WrapOption) ToolFunc {
	wcfg := wrapConfig{role: c.cfg.role}
	for _, o := range opts {
		o(&wcfg)
	}

	guarded := middleware.Chain(
		middleware.Func(name, middleware.Handler(fn)),
		middleware.Standard(c.engine, c.recorder)...,
	)

	return func(ctx context.Context, args map[string]any) (any, error) {
		ctx = middleware.WithRole(ctx, wcfg.role)
		out, err := guarded.Invoke(ctx, args)
		if v, ok := policy.AsViolation(err); ok {
			return nil, &BlockedError{Tool: v.Tool, Role: v.Role, Rule: v.Rule, violation: v}
		}
		return out, err
	}
}
