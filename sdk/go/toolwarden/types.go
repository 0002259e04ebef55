package toolwarden

import (
	"fmt"

	"github.com/ppiankov/toolwarden/internal/policy"
	"github.com/ppiankov/toolwarden/internal/receipt"
)

// Decision is the firewall outcome for one call.
type Decision string

const (
	Allow Decision = Decision(policy.Allow)
	Block Decision = Decision(policy.Block)
)

// Call describes a tool invocation to check.
type Call struct {
	Tool string
	Args map[string]any
	// Role overrides the client role. Empty uses the client role.
	Role string
}

// Result is a firewall evaluation outcome.
type Result struct {
	Decision Decision
	// Rule is the blocking rule name, empty when allowed.
	Rule     string
	Warnings []string
	Exempted []string
}

// Allowed returns true if the decision permits the call.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// BlockedError is returned by wrapped tools when a rule stops the call.
// It unwraps to the underlying *policy.Violation.
type BlockedError struct {
	Tool string
	Role string
	Rule string

	violation *policy.Violation
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("toolwarden blocked %s: action prohibited by policy rule: %s", e.Tool, e.Rule)
}

func (e *BlockedError) Unwrap() error { return e.violation }

// Run describes the unit of work a receipt is built for.
type Run = receipt.Metadata

// Receipt is the end-of-run record.
type Receipt = receipt.Receipt

func toResult(v policy.Verdict) Result {
	return Result{
		Decision: Decision(v.Decision),
		Rule:     v.Rule,
		Warnings: v.Warnings,
		Exempted: v.Exempted,
	}
}
