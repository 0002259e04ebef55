package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/toolset"
)

const checkToolName = "toolwarden_check"

// BlockedOutput is the payload of a refused call.
type BlockedOutput struct {
	Blocked  bool   `json:"blocked"`
	Decision string `json:"decision"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
}

// CheckInput defines parameters for the toolwarden_check tool.
type CheckInput struct {
	Tool string         `json:"tool" jsonschema:"registered tool name to check"`
	Args map[string]any `json:"args,omitempty" jsonschema:"arguments the call would carry"`
	Role string         `json:"role,omitempty" jsonschema:"caller role, defaults to the server role"`
}

// CheckOutput contains the verdict.
type CheckOutput struct {
	Decision string   `json:"decision"`
	Rule     string   `json:"rule,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Exempted []string `json:"exempted,omitempty"`
}

func (s *Server) toolHandler(entry toolset.Entry) mcpsdk.ToolHandlerFor[map[string]any, any] {
	wrapped := middleware.Chain(entry.Tool, middleware.Standard(s.engine, s.recorder)...)

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, args map[string]any) (*mcpsdk.CallToolResult, any, error) {
		ctx = middleware.WithToolName(ctx, entry.Name)
		if s.role != "" {
			ctx = middleware.WithRole(ctx, s.role)
		}

		out, err := wrapped.Invoke(ctx, args)
		if v, ok := policy.AsViolation(err); ok {
			return jsonResult(BlockedOutput{
				Blocked:  true,
				Decision: string(policy.Block),
				Rule:     v.Rule,
				Reason:   v.Error(),
			}, true), nil, nil
		}
		if err != nil {
			s.logger.WarnContext(ctx, "tool failed", "tool", entry.Name, "error", err)
			return textResult(err.Error(), true), nil, nil
		}
		return jsonResult(out, false), nil, nil
	}
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Tool == "" {
		return nil, CheckOutput{}, fmt.Errorf("tool is required")
	}
	role := input.Role
	if role == "" {
		role = s.role
	}
	if role == "" {
		role = policy.DefaultRole
	}

	verdict, err := s.engine.Evaluate(ctx, policy.Call{Tool: input.Tool, Args: input.Args, Role: role})
	if err != nil && !policy.IsViolation(err) {
		return nil, CheckOutput{}, fmt.Errorf("evaluate %s: %w", input.Tool, err)
	}
	return nil, CheckOutput{
		Decision: string(verdict.Decision),
		Rule:     verdict.Rule,
		Warnings: verdict.Warnings,
		Exempted: verdict.Exempted,
	}, nil
}

func jsonResult(v any, isError bool) *mcpsdk.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return textResult(fmt.Sprintf("encode result: %v", err), true)
	}
	return textResult(string(data), isError)
}

func textResult(text string, isError bool) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: isError,
	}
}
