package rulediff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *Result) string {
	if !r.HasChanges {
		return fmt.Sprintf("Rules diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rules diff: %s → %s\n\n", r.OldPath, r.NewPath)

	for _, rc := range r.RuleChanges {
		switch rc.Type {
		case Added:
			fmt.Fprintf(&b, "  + %q %s", rc.Rule, rc.New)
		case Removed:
			fmt.Fprintf(&b, "  - %q %s", rc.Rule, rc.Old)
		case Changed:
			fmt.Fprintf(&b, "  ~ %q %-11s %s → %s", rc.Rule, rc.Field+":", orNone(rc.Old), orNone(rc.New))
		case Moved:
			fmt.Fprintf(&b, "  ↕ %q position %s → %s", rc.Rule, rc.Old, rc.New)
		}
		if rc.Comment != "" {
			fmt.Fprintf(&b, "  (%s)", rc.Comment)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
