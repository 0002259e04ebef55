// Package toolwarden provides in-process tool-call firewalling for Go agent
// frameworks. It wraps tool functions, checks every call against ordered
// pattern rules before the tool runs, counts and times each call, and builds
// the end-of-run receipt from those counts.
//
// Usage:
//
//	tw, err := toolwarden.New(toolwarden.WithRulesFile("rules.yaml"), toolwarden.WithRole("USER"))
//	deleteFile := tw.Wrap("delete_file", myDeleteFunc)
//	_, err = deleteFile(ctx, map[string]any{"path": "/tmp/x"})
//	var blocked *toolwarden.BlockedError
//	if errors.As(err, &blocked) { ... }
//
// The SDK links directly against internal packages. External users import
// github.com/ppiankov/toolwarden/sdk/go/toolwarden.
package toolwarden
