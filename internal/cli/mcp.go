package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/mcp"
)

var (
	mcpRules    string
	mcpRole     string
	mcpNoCheck  bool
	mcpAuditLog string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpRules, "rules", "", "Path to rules YAML (default from config)")
	mcpCmd.Flags().StringVar(&mcpRole, "role", "", "Caller role applied to every call (default from config)")
	mcpCmd.Flags().BoolVar(&mcpNoCheck, "no-check-tool", false, "Hide the toolwarden_check dry-run tool")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs toolwarden as an MCP (Model Context Protocol) server over stdio.\n" +
		"Every registered tool is checked against the rules before it runs.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	if mcpRules != "" {
		cfg.Rules.Path = mcpRules
	}
	if mcpRole != "" {
		cfg.Rules.Role = mcpRole
	}
	if mcpAuditLog != "" {
		cfg.Audit.Path = mcpAuditLog
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	srv := mcp.New(mcp.Config{
		Name:             "toolwarden",
		Version:          version,
		Role:             cfg.Rules.Role,
		DisableCheckTool: mcpNoCheck,
	}, st.holder, st.tools, st.recorder)

	fmt.Fprintf(os.Stderr, "toolwarden MCP server running on stdio (%d tools, role %s)\n\n", st.tools.Len(), cfg.Rules.Role)

	err = srv.Run(ctx)

	// Usage summary on exit
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage summary:")
	out, _ := json.MarshalIndent(st.process.Snapshot(), "", "  ")
	fmt.Fprintln(os.Stderr, string(out))

	return err
}
