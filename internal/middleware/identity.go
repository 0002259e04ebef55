package middleware

import (
	"context"

	"github.com/ppiankov/toolwarden/internal/policy"
)

type ctxKey int

const (
	toolNameKey ctxKey = iota
	roleKey
)

// WithToolName sets an explicit tool identity for calls made with ctx.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey, name)
}

// ToolName returns the identity used for policy checks and accounting:
// the explicit name from ctx when one was set, otherwise tool.Name().
// A tool registered under a name other than its declared one must be
// called with WithToolName, or rules will be evaluated for the wrong tool.
func ToolName(ctx context.Context, tool Tool) string {
	if name, ok := ctx.Value(toolNameKey).(string); ok && name != "" {
		return name
	}
	return tool.Name()
}

// WithRole sets the caller role for calls made with ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// RoleFrom returns the caller role carried by ctx, or policy.DefaultRole.
func RoleFrom(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok && role != "" {
		return role
	}
	return policy.DefaultRole
}
