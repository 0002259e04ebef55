package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/rules"
	"github.com/ppiankov/toolwarden/internal/scenario"
)

var (
	checkScenario string
	checkRules    string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().StringVar(&checkRules, "rules", "", "Path to rules YAML (default from config)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run firewall assertions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, evaluates each\n" +
		"case against the rules, and reports pass/fail.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.\n" +
		"Use in CI to gate rule changes.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := cfg.Rules.Path
	if checkRules != "" {
		path = checkRules
	}
	// A rule file under test must load; an empty fallback would pass every ALLOWED case.
	set, err := rules.Load(path, rules.Options{Strict: true})
	if err != nil {
		return err
	}

	results, err := scenario.RunGlob(context.Background(), checkScenario, policy.New(set))
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), scenario.FormatText(results))
	}

	if scenario.Failed(results) {
		os.Exit(1)
	}
	return nil
}
