package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolwarden/internal/policy"
)

// Run evaluates every case in s against engine. Cases are independent.
func Run(ctx context.Context, s *Scenario, engine *policy.Engine) *RunResult {
	result := &RunResult{Name: s.Name, Total: len(s.Cases)}

	for i, c := range s.Cases {
		role := c.Role
		if role == "" {
			role = s.Role
		}
		if role == "" {
			role = policy.DefaultRole
		}
		call := policy.Call{Tool: c.Tool, Args: c.Args, Role: role}

		cr := CaseResult{
			Index:        i + 1,
			Tool:         c.Tool,
			Subject:      engine.Subject(call),
			Role:         role,
			Expected:     normalizeDecision(c.Expect),
			ExpectedRule: c.Rule,
		}

		verdict, err := engine.Evaluate(ctx, call)
		cr.Actual = string(verdict.Decision)
		cr.Rule = verdict.Rule
		if err != nil && !policy.IsViolation(err) {
			cr.Error = err.Error()
		}

		cr.Passed = cr.Error == "" && cr.Actual == cr.Expected &&
			(c.Rule == "" || c.Rule == cr.Rule)
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}
	return result
}

func normalizeDecision(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALLOW", "ALLOWED":
		return string(policy.Allow)
	case "BLOCK", "BLOCKED", "DENY":
		return string(policy.Block)
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	return &s, nil
}

// LoadAndRun loads the scenario at path and runs it against engine.
func LoadAndRun(ctx context.Context, path string, engine *policy.Engine) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(ctx, s, engine)
	result.File = path
	return result, nil
}

// RunGlob runs every scenario file matching pattern, in path order.
func RunGlob(ctx context.Context, pattern string, engine *policy.Engine) ([]*RunResult, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files match %q", pattern)
	}
	sort.Strings(paths)

	results := make([]*RunResult, 0, len(paths))
	for _, p := range paths {
		r, err := LoadAndRun(ctx, p, engine)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Failed reports whether any case in results failed.
func Failed(results []*RunResult) bool {
	for _, r := range results {
		if r.Failed > 0 {
			return true
		}
	}
	return false
}
