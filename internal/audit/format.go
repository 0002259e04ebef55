package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTable renders entries as one row per call.
func FormatTable(entries []Entry) string {
	if len(entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-8s %-20s %-8s %9s  %s\n", "TIME", "OUTCOME", "TOOL", "ROLE", "MS", "RULE")
	b.WriteString(separator + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-10s %-8s %-20s %-8s %9.2f  %s\n",
			clock(e.Timestamp),
			strings.ToUpper(e.Outcome),
			truncate(e.Tool, 20),
			truncate(e.Role, 8),
			e.DurationMS,
			e.Rule,
		)
	}
	b.WriteString(separator + "\n")
	b.WriteString(FormatSummary(Summarize(entries)))
	return b.String()
}

// FormatSummary renders a one-line summary followed by per-tool counts.
func FormatSummary(s Summary) string {
	var parts []string
	for _, outcome := range sortedKeys(s.ByOutcome) {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByOutcome[outcome], outcome))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary: %d calls (%s)\n", s.Total, strings.Join(parts, ", "))
	for _, tool := range sortedKeys(s.ByTool) {
		fmt.Fprintf(&b, "  %-20s %5d calls  %8.2f ms avg\n", tool, s.ByTool[tool], s.Latency[tool])
	}
	for _, rule := range sortedKeys(s.Blocked) {
		fmt.Fprintf(&b, "  blocked by %q: %d\n", rule, s.Blocked[rule])
	}
	return b.String()
}

// FormatJSON renders entries and their summary as indented JSON.
func FormatJSON(entries []Entry) (string, error) {
	out := struct {
		Entries []Entry `json:"entries"`
		Summary Summary `json:"summary"`
	}{Entries: entries, Summary: Summarize(entries)}
	if out.Entries == nil {
		out.Entries = []Entry{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal entries: %w", err)
	}
	return string(data), nil
}

func clock(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
