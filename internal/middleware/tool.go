// Package middleware wraps tools with cross-cutting behavior.
//
// A Tool is anything with a declared name that can be invoked with named
// arguments. Tool bodies may return immediately or block on I/O; both are the
// same contract, since the body receives the caller's context. Start turns
// any invocation into a pending result for callers that want a future.
//
// Middlewares compose by nesting. Chain applies them outermost first, and the
// production order is Standard: accounting around authorization around the
// body, so a refused call is still counted and its check latency included.
package middleware

import (
	"context"
)

// Args are the named arguments of one call.
type Args = map[string]any

// Tool is an invocable operation.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args Args) (any, error)
}

// Handler is the function form of a tool body.
type Handler func(ctx context.Context, args Args) (any, error)

type funcTool struct {
	name string
	fn   Handler
}

// Func declares a tool named name backed by fn.
func Func(name string, fn Handler) Tool {
	return &funcTool{name: name, fn: fn}
}

func (t *funcTool) Name() string { return t.name }

func (t *funcTool) Invoke(ctx context.Context, args Args) (any, error) {
	return t.fn(ctx, args)
}

// Middleware transforms a tool into another tool with the same name and
// calling convention.
type Middleware func(Tool) Tool

// Wrap builds a tool that keeps inner's declared name and runs fn instead
// of inner's body. Middlewares use it so that the name survives wrapping.
func Wrap(inner Tool, fn Handler) Tool {
	return &funcTool{name: inner.Name(), fn: fn}
}

// Chain applies mws to tool so that mws[0] is the outermost layer.
func Chain(tool Tool, mws ...Middleware) Tool {
	for i := len(mws) - 1; i >= 0; i-- {
		tool = mws[i](tool)
	}
	return tool
}

// Result is the outcome of an asynchronous invocation.
type Result struct {
	Value any
	Err   error
}

// Pending is an invocation running in its own goroutine.
type Pending struct {
	done chan struct{}
	res  Result
}

// Start invokes tool in a new goroutine.
func Start(ctx context.Context, tool Tool, args Args) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.res.Value, p.res.Err = tool.Invoke(ctx, args)
	}()
	return p
}

// Done is closed once the invocation has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the invocation completes and returns its result.
func (p *Pending) Wait() (any, error) {
	<-p.done
	return p.res.Value, p.res.Err
}
