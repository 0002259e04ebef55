package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/rules"
)

var (
	evalRules    string
	evalRole     string
	evalArgsJSON string
)

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalRules, "rules", "", "Path to rules YAML (default from config)")
	evalCmd.Flags().StringVar(&evalRole, "role", "", "Caller role (default from config)")
	evalCmd.Flags().StringVar(&evalArgsJSON, "args-json", "", "Call arguments as a JSON object")
}

var evalCmd = &cobra.Command{
	Use:   "eval <tool> [key=value...]",
	Short: "Dry-run one tool call against the rules",
	Long: "Evaluates a single call without running anything and prints the verdict.\n" +
		"Arguments come from key=value pairs or --args-json.\n\n" +
		"Exit code 0 if allowed, 1 if blocked.",
	Example: `  toolwarden eval delete_file path=/tmp/x
  toolwarden eval run_query --args-json '{"sql":"DROP TABLE users"}' --role ADMIN`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

type evalOutput struct {
	Tool     string          `json:"tool"`
	Role     string          `json:"role"`
	Subject  string          `json:"subject"`
	Decision policy.Decision `json:"decision"`
	Rule     string          `json:"rule,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Exempted []string        `json:"exempted,omitempty"`
	Hash     string          `json:"rules_hash"`
}

func runEval(cmd *cobra.Command, args []string) error {
	callArgs, err := parseCallArgs(args[1:], evalArgsJSON)
	if err != nil {
		return err
	}
	path := cfg.Rules.Path
	if evalRules != "" {
		path = evalRules
	}
	role := cfg.Rules.Role
	if evalRole != "" {
		role = evalRole
	}

	set, err := rules.Load(path, rules.Options{Strict: cfg.Rules.Strict})
	if err != nil {
		return err
	}
	engine := policy.New(set)
	call := policy.Call{Tool: args[0], Args: callArgs, Role: role}

	verdict, err := engine.Evaluate(context.Background(), call)
	if err != nil && !policy.IsViolation(err) {
		return err
	}

	out, _ := json.MarshalIndent(evalOutput{
		Tool:     call.Tool,
		Role:     role,
		Subject:  engine.Subject(call),
		Decision: verdict.Decision,
		Rule:     verdict.Rule,
		Warnings: verdict.Warnings,
		Exempted: verdict.Exempted,
		Hash:     engine.Hash(),
	}, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if verdict.Decision == policy.Block {
		os.Exit(1)
	}
	return nil
}

// parseCallArgs merges --args-json with key=value pairs. Pairs win on
// conflict.
func parseCallArgs(pairs []string, raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("invalid --args-json: %w", err)
		}
	}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", p)
		}
		out[key] = value
	}
	return out, nil
}
