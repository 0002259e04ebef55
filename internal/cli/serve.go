package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/mcp"
	"github.com/ppiankov/toolwarden/internal/server"
)

var (
	serveHTTPAddr string
	serveGRPCPort int
	serveRules    string
	serveAuditLog string
	serveWatch    bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP listen address for /healthz, /metrics and MCP (default from config)")
	serveCmd.Flags().IntVar(&serveGRPCPort, "port", 0, "gRPC health listen port (default from config)")
	serveCmd.Flags().StringVar(&serveRules, "rules", "", "Path to rules YAML (default from config)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload rules when the file changes")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve firewalled tools over streamable HTTP MCP",
	Long: "Runs toolwarden as a long-lived server: the MCP endpoint, /healthz and\n" +
		"/metrics on the HTTP listener, and the gRPC health service.\n" +
		"With --watch, or on SIGHUP, the rules file is reloaded; a broken edit keeps the last good rules.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHTTPAddr != "" {
		cfg.Server.HTTPAddr = serveHTTPAddr
	}
	if serveGRPCPort != 0 {
		cfg.Server.GRPCPort = serveGRPCPort
	}
	if serveRules != "" {
		cfg.Rules.Path = serveRules
	}
	if serveAuditLog != "" {
		cfg.Audit.Path = serveAuditLog
	}
	if serveWatch {
		cfg.Rules.Watch = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	st, err := buildStack(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	srv := server.New(server.Config{
		GRPCPort: cfg.Server.GRPCPort,
		HTTPAddr: cfg.Server.HTTPAddr,
		Metrics:  cfg.Server.Metrics,
	}, st.holder, reg)

	if cfg.Server.MCPPath != "" {
		mcpSrv := mcp.New(mcp.Config{Name: "toolwarden", Version: version, Role: cfg.Rules.Role},
			st.holder, st.tools, st.recorder)
		srv.Handle(cfg.Server.MCPPath, mcpSrv.HTTPHandler())
	}

	if cfg.Rules.Watch {
		reloader, err := server.NewReloader(st.holder.Reload, cfg.Rules.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go func() { _ = reloader.Run(ctx) }()
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := st.holder.Reload(); err != nil {
					fmt.Fprintf(os.Stderr, "reload failed, keeping current rules: %v\n", err)
				}
			}
		}
	}()

	fmt.Fprintf(os.Stderr, "toolwarden serving %d tools (rules %s)\n", st.tools.Len(), st.holder.Hash())
	if cfg.Server.MCPPath != "" && cfg.Server.HTTPAddr != "" {
		fmt.Fprintf(os.Stderr, "MCP endpoint: http://%s%s\n", cfg.Server.HTTPAddr, cfg.Server.MCPPath)
	}

	err = srv.Serve(ctx)
	fmt.Fprintln(os.Stderr, "\nShutting down toolwarden server...")
	return err
}
