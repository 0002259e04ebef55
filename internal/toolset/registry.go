// Package toolset holds the tools an agent may call, keyed by the name the
// firewall sees.
package toolset

import (
	"errors"
	"fmt"

	"github.com/ppiankov/toolwarden/internal/middleware"
)

// ErrUnknownTool is returned when a name has no registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Entry is one registered tool.
type Entry struct {
	Name        string
	Description string
	Tool        middleware.Tool
}

// Registry is an ordered name → tool table. Register before sharing; lookups
// are safe for concurrent use once registration is done.
type Registry struct {
	order []string
	byKey map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Entry)}
}

// Register adds tool under name. The registered name is the identity used for
// policy and accounting; it may differ from tool.Name().
func (r *Registry) Register(name, description string, tool middleware.Tool) error {
	if name == "" {
		return errors.New("toolset: tool name is required")
	}
	if tool == nil {
		return fmt.Errorf("toolset: %s: tool is nil", name)
	}
	if _, dup := r.byKey[name]; dup {
		return fmt.Errorf("toolset: %s already registered", name)
	}
	r.order = append(r.order, name)
	r.byKey[name] = Entry{Name: name, Description: description, Tool: tool}
	return nil
}

// MustRegister is Register that panics on error. For static tool tables.
func (r *Registry) MustRegister(name, description string, tool middleware.Tool) {
	if err := r.Register(name, description, tool); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (middleware.Tool, error) {
	e, ok := r.byKey[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.Tool, nil
}

// Entries returns every registered tool in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }
