package toolset

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/queue"
	"github.com/ppiankov/toolwarden/internal/receipt"
)

// Deps are the backends the built-in tools run against. Tools whose backend
// is nil are not registered.
type Deps struct {
	Queue    *queue.Store
	Receipts receipt.Store
	Now      func() time.Time
}

// Builtin returns a registry with health_check plus every tool whose backend
// is configured in deps.
func Builtin(deps Deps) *Registry {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	r := NewRegistry()
	r.MustRegister("health_check", "Report that the tool server is up.",
		middleware.Func("health_check", func(ctx context.Context, _ middleware.Args) (any, error) {
			return map[string]any{"status": "ok", "time": now().UTC().Format(time.RFC3339)}, nil
		}))

	if deps.Queue != nil {
		q := deps.Queue
		r.MustRegister("read_queue", "Read pending tickets from the ticket queue, oldest first. Args: limit (default 10).",
			middleware.Func("read_queue", func(ctx context.Context, args middleware.Args) (any, error) {
				limit, err := IntArg(args, "limit", queue.DefaultLimit)
				if err != nil {
					return nil, err
				}
				return q.Pending(ctx, limit)
			}))
		r.MustRegister("update_ticket", "Set a ticket's status and optional result. Args: ticket_id, status, result.",
			middleware.Func("update_ticket", func(ctx context.Context, args middleware.Args) (any, error) {
				id, err := StringArg(args, "ticket_id")
				if err != nil {
					return nil, err
				}
				status, err := StringArg(args, "status")
				if err != nil {
					return nil, err
				}
				result, err := OptionalString(args, "result")
				if err != nil {
					return nil, err
				}
				if err := q.Update(ctx, id, status, result); err != nil {
					return nil, err
				}
				return fmt.Sprintf("updated ticket %s to %s", id, status), nil
			}))
	}

	if deps.Receipts != nil {
		store := deps.Receipts
		r.MustRegister("log_mission_receipt", "Persist a mission receipt. Args: receipt (object).",
			middleware.Func("log_mission_receipt", func(ctx context.Context, args middleware.Args) (any, error) {
				raw, ok := args["receipt"].(map[string]any)
				if !ok {
					return nil, &ArgError{Name: "receipt", Reason: "object required"}
				}
				rec, err := receipt.DecodeMap(raw)
				if err != nil {
					return nil, err
				}
				id, err := store.Save(ctx, rec)
				if err != nil {
					return nil, err
				}
				return map[string]any{"id": id, "status": string(rec.Status)}, nil
			}))
	}
	return r
}

// ArgError reports a missing or mistyped tool argument.
type ArgError struct {
	Name   string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Name, e.Reason)
}

// StringArg returns a required non-empty string argument.
func StringArg(args middleware.Args, name string) (string, error) {
	s, err := OptionalString(args, name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", &ArgError{Name: name, Reason: "required"}
	}
	return s, nil
}

// OptionalString returns a string argument, or "" when absent.
func OptionalString(args middleware.Args, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgError{Name: name, Reason: fmt.Sprintf("want string, got %T", v)}
	}
	return s, nil
}

// IntArg returns an integer argument, or def when absent. JSON numbers arrive
// as float64 and are accepted when integral.
func IntArg(args middleware.Args, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, &ArgError{Name: name, Reason: err.Error()}
	}
	return n, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("want integer, got %v", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("want integer, got %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}
