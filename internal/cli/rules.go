package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/rulediff"
	"github.com/ppiankov/toolwarden/internal/rules"
)

var rulesDiffFormat string

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesDiffCmd)
	rulesDiffCmd.Flags().StringVarP(&rulesDiffFormat, "format", "f", "text", "Output format (text|json)")
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect firewall rule files",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a rule file loads cleanly",
	Long:  "Loads the rule file in strict mode. Exit code 0 if every rule compiles.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := rules.Load(rulesPathArg(args), rules.Options{Strict: true})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK (%s)\n", set.Path, len(set.Rules), set.Hash)
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print the rules in evaluation order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := rules.Load(rulesPathArg(args), rules.Options{Strict: cfg.Rules.Strict})
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if set.Degraded {
			fmt.Fprintf(w, "DEGRADED: %s (every call is allowed)\n", set.Reason)
		}
		for i, r := range set.Rules {
			action := string(r.Action)
			if action == "" {
				action = "-"
			}
			fmt.Fprintf(w, "%2d  %-5s  %-24s  %s", i+1, action, r.Name, r.Pattern)
			if len(r.Exceptions) > 0 {
				fmt.Fprint(w, "  except")
				for _, e := range r.Exceptions {
					fmt.Fprintf(w, " %s", e.Name())
				}
			}
			fmt.Fprintln(w)
		}
		return nil
	},
}

var rulesDiffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Compare two rule files",
	Long: "Shows added, removed, changed and reordered rules, and whether each\n" +
		"change makes the firewall stricter or looser. Both files must load cleanly.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		old, err := rules.Load(args[0], rules.Options{Strict: true})
		if err != nil {
			return err
		}
		next, err := rules.Load(args[1], rules.Options{Strict: true})
		if err != nil {
			return err
		}
		result := rulediff.Diff(old, next)

		if rulesDiffFormat == "json" {
			out, err := rulediff.FormatJSON(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), rulediff.FormatText(result))
		return nil
	},
}

func rulesPathArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Rules.Path
}
