package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Filter selects entries for Read. Zero fields match everything.
type Filter struct {
	Tool    string
	Outcome string
	Since   time.Time
	// Last keeps only the final N matching entries when > 0.
	Last int
}

func (f Filter) match(e Entry) bool {
	if f.Tool != "" && e.Tool != f.Tool {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() {
		ts, err := time.Parse(TimestampFormat, e.Timestamp)
		if err != nil || ts.Before(f.Since) {
			return false
		}
	}
	return true
}

// Read returns the entries in path that match f, in file order.
func Read(path string, f Filter) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	defer file.Close()

	var out []Entry
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	n := 0
	for sc.Scan() {
		n++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: line %d: %w", n, err)
		}
		if f.match(e) {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan: %w", err)
	}
	if f.Last > 0 && len(out) > f.Last {
		out = out[len(out)-f.Last:]
	}
	return out, nil
}

// Summary aggregates a slice of entries.
type Summary struct {
	Total     int                `json:"total"`
	ByOutcome map[string]int     `json:"by_outcome"`
	ByTool    map[string]int     `json:"by_tool"`
	Blocked   map[string]int     `json:"blocked_by_rule,omitempty"`
	Latency   map[string]float64 `json:"mean_duration_ms"`
}

// Summarize counts entries per outcome, per tool and per blocking rule, and
// averages latency per tool.
func Summarize(entries []Entry) Summary {
	s := Summary{
		Total:     len(entries),
		ByOutcome: map[string]int{},
		ByTool:    map[string]int{},
		Blocked:   map[string]int{},
		Latency:   map[string]float64{},
	}
	for _, e := range entries {
		s.ByOutcome[e.Outcome]++
		s.ByTool[e.Tool]++
		if e.Rule != "" {
			s.Blocked[e.Rule]++
		}
		s.Latency[e.Tool] += e.DurationMS
	}
	for tool, total := range s.Latency {
		s.Latency[tool] = total / float64(s.ByTool[tool])
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
