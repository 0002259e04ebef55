// Package mcp exposes the tool registry as an MCP server. Every tool call
// passes through the firewall and the accounting chain before its body runs.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/middleware"
	"github.com/ppiankov/toolwarden/internal/toolset"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	// Role is the caller role applied to every call from this server's
	// clients. Empty means the policy default.
	Role string
	// DisableCheckTool hides the toolwarden_check dry-run tool.
	DisableCheckTool bool
}

// Server wraps the MCP SDK server with firewall enforcement.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    middleware.Evaluator
	tools     *toolset.Registry
	recorder  ledger.Recorder
	role      string
	logger    *slog.Logger
}

// New builds a server exposing every tool in tools. engine may be a reloading
// holder; it is consulted on every call. rec receives one observation per
// call and may be nil.
func New(cfg Config, engine middleware.Evaluator, tools *toolset.Registry, rec ledger.Recorder) *Server {
	name := cfg.Name
	if name == "" {
		name = "toolwarden"
	}
	version := cfg.Version
	if version == "" {
		version = "0.0.0"
	}
	if rec == nil {
		rec = ledger.Multi()
	}

	s := &Server{
		engine:   engine,
		tools:    tools,
		recorder: rec,
		role:     cfg.Role,
		logger:   slog.Default().With("component", "mcp"),
	}
	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{Name: name, Version: version}, nil)

	for _, entry := range tools.Entries() {
		mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
			Name:        entry.Name,
			Description: entry.Description,
		}, s.toolHandler(entry))
	}
	if !cfg.DisableCheckTool {
		mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
			Name:        checkToolName,
			Description: "Check whether a tool call would be allowed by the firewall without running it (dry-run).",
		}, s.handleCheck)
	}
	return s
}

// Run serves MCP on stdio. Blocks until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio", "tools", s.tools.Len(), "role", s.role)
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// HTTPHandler serves MCP over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcpServer
	}, nil)
}

// SDK returns the underlying SDK server, for in-process transports.
func (s *Server) SDK() *mcpsdk.Server { return s.mcpServer }
