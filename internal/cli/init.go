package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolwarden/internal/config"
	"github.com/ppiankov/toolwarden/internal/rules"
	"github.com/ppiankov/toolwarden/internal/systemd"
)

var (
	initMode           string
	initInstallSystemd bool
	initForce          bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.toolwarden) or system (/etc/toolwarden)")
	initCmd.Flags().BoolVar(&initInstallSystemd, "install-systemd", false, "Install the toolwarden.service unit (requires root)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap toolwarden configuration",
	Long: `Creates the config directory with a default rules file and config.yaml.

User mode (default):  writes to ~/.toolwarden/
System mode:          writes to /etc/toolwarden/ (requires root)

With --install-systemd: installs toolwarden.service running
  toolwarden serve --config <dir>/config.yaml --watch`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}

	var created []string

	rulesPath := filepath.Join(configDir, "rules.yaml")
	if wrote, err := writeIfMissing(rulesPath, rules.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, rulesPath)
	}

	configFile := filepath.Join(configDir, "config.yaml")
	configContent, err := defaultConfigYAML(configDir)
	if err != nil {
		return fmt.Errorf("generate default config: %w", err)
	}
	if wrote, err := writeIfMissing(configFile, configContent); err != nil {
		return err
	} else if wrote {
		created = append(created, configFile)
	}

	if initInstallSystemd {
		if runtime.GOOS != "linux" {
			return fmt.Errorf("--install-systemd is only supported on Linux")
		}
		if os.Geteuid() != 0 {
			return fmt.Errorf("--install-systemd requires root; run with sudo")
		}
		if err := os.WriteFile(systemd.UnitPath, []byte(systemd.ServeTemplate(configFile)), 0o644); err != nil {
			return fmt.Errorf("write systemd unit: %w", err)
		}
		created = append(created, systemd.UnitPath)

		if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: systemctl daemon-reload failed: %v\n", err)
		}
	}

	fmt.Println("toolwarden init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Verify:")
	fmt.Printf("  toolwarden doctor --config %s\n", configFile)
	fmt.Println()
	fmt.Println("Serve firewalled tools to an agent:")
	fmt.Printf("  toolwarden mcp --config %s\n", configFile)

	if initInstallSystemd {
		fmt.Println()
		fmt.Println("Enable the server:")
		fmt.Println("  sudo systemctl enable --now toolwarden")
	}
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/toolwarden", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".toolwarden"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultConfigYAML renders the built-in configuration rooted at dir, with
// the audit log and ticket queue switched on.
func defaultConfigYAML(dir string) (string, error) {
	c := config.Default()
	c.Rules.Path = filepath.Join(dir, "rules.yaml")
	c.Audit.Path = filepath.Join(dir, "audit.jsonl")
	c.Queue.Path = filepath.Join(dir, "queue.db")
	c.Receipts.Path = filepath.Join(dir, "receipts.jsonl")

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	header := "# toolwarden configuration.\n" +
		"# Every key can be overridden by TOOLWARDEN_<SECTION>_<KEY>, e.g.\n" +
		"# TOOLWARDEN_RULES_ROLE=ADMIN or TOOLWARDEN_LEDGER_REDIS_ADDR=localhost:6379.\n" +
		"#\n" +
		"# Set receipts.mongo_uri to store receipts in MongoDB instead of receipts.path.\n\n"
	return header + string(data), nil
}
