package policy

import (
	"context"
	"log/slog"

	"github.com/ppiankov/toolwarden/internal/rules"
)

// DefaultRole is the caller role assumed when no identity is supplied.
const DefaultRole = "USER"

// Decision is the outcome of evaluating one call.
type Decision string

const (
	Allow Decision = "ALLOWED"
	Block Decision = "BLOCKED"
)

// Call describes one proposed tool invocation.
type Call struct {
	Tool string
	Args map[string]any
	Role string
}

// Verdict is the result of Evaluate.
type Verdict struct {
	Decision Decision
	// Rule is the blocking rule, empty when allowed.
	Rule string
	// Warnings lists WARN rules that matched.
	Warnings []string
	// Exempted lists BLOCK rules that matched but exempted the caller's role.
	Exempted []string
}

// Engine evaluates calls against an ordered rule set. It is read-only after
// New and safe for concurrent use.
type Engine struct {
	set      *rules.Set
	renderer Renderer
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRenderer replaces the canonical argument renderer.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithLogger sets the logger used for verdict lines.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over set. A nil set behaves as an empty one.
func New(set *rules.Set, opts ...Option) *Engine {
	if set == nil {
		set = rules.Empty()
	}
	e := &Engine{
		set:      set,
		renderer: CanonicalRenderer{},
		logger:   slog.Default().With("component", "policy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rule set the engine was built from.
func (e *Engine) Rules() *rules.Set { return e.set }

// Hash returns the hash of the loaded rule source.
func (e *Engine) Hash() string { return e.set.Hash }

// Subject returns the text that rule patterns are searched in for call.
func (e *Engine) Subject(call Call) string {
	return e.renderer.Render(call.Tool, call.Args)
}

// Evaluate renders call and walks the rules in load order.
//
// A matching rule whose exceptions include the caller's role is skipped. The
// first remaining match with action BLOCK ends evaluation with a *Violation.
// WARN matches are collected and evaluation continues. Inert rules are
// ignored. When nothing blocks, the verdict is Allow and err is nil.
func (e *Engine) Evaluate(ctx context.Context, call Call) (Verdict, error) {
	role := call.Role
	if role == "" {
		role = DefaultRole
	}
	subject := e.Subject(call)

	var v Verdict
	for _, r := range e.set.Rules {
		if !r.Match(subject) {
			continue
		}
		if r.Exempts(role) {
			if r.Action == rules.ActionBlock {
				v.Exempted = append(v.Exempted, r.Name)
			}
			continue
		}
		switch r.Action {
		case rules.ActionBlock:
			v.Decision = Block
			v.Rule = r.Name
			e.logger.InfoContext(ctx, "verdict BLOCKED",
				"tool", call.Tool,
				"role", role,
				"rule", r.Name,
			)
			return v, &Violation{Rule: r.Name, Tool: call.Tool, Role: role}
		case rules.ActionWarn:
			v.Warnings = append(v.Warnings, r.Name)
			e.logger.WarnContext(ctx, "rule matched in warn mode",
				"tool", call.Tool,
				"role", role,
				"rule", r.Name,
			)
		}
	}

	v.Decision = Allow
	e.logger.DebugContext(ctx, "verdict ALLOWED", "tool", call.Tool, "role", role)
	return v, nil
}
