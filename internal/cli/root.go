package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "toolwarden",
	Short: "Action firewall and usage accounting for agent tool calls",
	Long: "Checks every tool call an agent makes against declarative rules before it runs,\n" +
		"counts and times every call, and writes a receipt for each unit of work.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if logFormat != "" {
			loaded.Log.Format = logFormat
		}
		logger, err := loaded.Log.NewLogger(os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (env: TOOLWARDEN_* overrides)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text|json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
