package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is what a matching rule does to a call.
type Action string

const (
	// ActionNone marks an inert rule: it matches but never blocks.
	ActionNone Action = ""
	// ActionBlock stops the call and reports the rule as violated.
	ActionBlock Action = "BLOCK"
	// ActionWarn logs the match and lets evaluation continue.
	ActionWarn Action = "WARN"
)

// Exception exempts one caller role from a rule.
// Older rule files use user_role; both keys are accepted.
type Exception struct {
	Role     string `yaml:"role,omitempty" json:"role,omitempty"`
	UserRole string `yaml:"user_role,omitempty" json:"user_role,omitempty"`
}

// Name returns the exempted role. role wins over user_role when both are set.
func (e Exception) Name() string {
	if e.Role != "" {
		return e.Role
	}
	return e.UserRole
}

// Rule is a declarative firewall entry. Rules are evaluated in file order.
type Rule struct {
	Name       string      `yaml:"name" json:"name"`
	Pattern    string      `yaml:"pattern" json:"pattern"`
	Action     Action      `yaml:"action,omitempty" json:"action,omitempty"`
	Exceptions []Exception `yaml:"exceptions,omitempty" json:"exceptions,omitempty"`

	re *regexp.Regexp
}

// Match reports whether the rule's pattern occurs anywhere in subject.
// Matching is case-insensitive.
func (r *Rule) Match(subject string) bool {
	return r.re != nil && r.re.MatchString(subject)
}

// Exempts reports whether role is listed in the rule's exceptions.
func (r *Rule) Exempts(role string) bool {
	for _, exc := range r.Exceptions {
		if exc.Name() == role {
			return true
		}
	}
	return false
}

// Document is the on-disk shape of a rule file.
type Document struct {
	Rules []Rule `yaml:"rules"`
}

// Set is an ordered, compiled, immutable list of rules.
type Set struct {
	Rules []*Rule
	// Hash is "sha256:<hex>" over the raw source bytes.
	Hash string
	Path string
	// Degraded is true when the source could not be loaded and the set is
	// empty as a fallback. A degraded set allows every call.
	Degraded bool
	Reason   string
}

// Options controls how Load reacts to an unusable source.
type Options struct {
	// Strict turns a degraded load into an error instead of an empty set.
	Strict bool
}

// DegradedError is returned by Load in strict mode when the rule source
// could not be used.
type DegradedError struct {
	Path   string
	Reason string
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("rules: %s unusable: %s", e.Path, e.Reason)
}

// RuleError reports a malformed rule entry. A file with any malformed
// entry is rejected as a whole.
type RuleError struct {
	Index int
	Name  string
	Err   error
}

func (e *RuleError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("rules: entry %d (%q): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("rules: entry %d: %v", e.Index, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

var (
	errNoName    = errors.New("name is required")
	errNoPattern = errors.New("pattern is required")
)

// Empty returns a non-degraded set with no rules.
func Empty() *Set {
	return &Set{Hash: hashBytes(nil)}
}

// Load reads and compiles a rule file.
//
// A missing, unreadable or unparsable file yields an empty degraded set and
// a warning log, unless opts.Strict is set, in which case a *DegradedError is
// returned. A file that parses but contains a malformed entry is always an
// error (*RuleError).
func Load(path string, opts Options) (*Set, error) {
	logger := slog.Default().With("component", "rules")

	data, err := os.ReadFile(path)
	if err != nil {
		return degrade(logger, path, fmt.Sprintf("read: %v", err), opts)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return degrade(logger, path, fmt.Sprintf("parse: %v", err), opts)
	}

	set, err := compile(doc.Rules)
	if err != nil {
		return nil, err
	}
	set.Hash = hashBytes(data)
	set.Path = path

	logger.Info("rule set loaded", "path", path, "rules", len(set.Rules), "hash", set.Hash)
	return set, nil
}

// Parse compiles a rule document held in memory.
func Parse(data []byte) (*Set, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	set, err := compile(doc.Rules)
	if err != nil {
		return nil, err
	}
	set.Hash = hashBytes(data)
	return set, nil
}

// New compiles rules built in code.
func New(rules ...Rule) (*Set, error) {
	set, err := compile(rules)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(Document{Rules: rules})
	if err != nil {
		return nil, fmt.Errorf("rules: encode: %w", err)
	}
	set.Hash = hashBytes(data)
	return set, nil
}

func degrade(logger *slog.Logger, path, reason string, opts Options) (*Set, error) {
	if opts.Strict {
		return nil, &DegradedError{Path: path, Reason: reason}
	}
	logger.Warn("rule set degraded, firewall open: every call will be allowed",
		"path", path,
		"reason", reason,
	)
	set := Empty()
	set.Path = path
	set.Degraded = true
	set.Reason = reason
	return set, nil
}

func compile(in []Rule) (*Set, error) {
	set := &Set{Rules: make([]*Rule, 0, len(in))}
	for i, r := range in {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, &RuleError{Index: i, Err: errNoName}
		}
		if r.Pattern == "" {
			return nil, &RuleError{Index: i, Name: r.Name, Err: errNoPattern}
		}
		action, err := parseAction(string(r.Action))
		if err != nil {
			return nil, &RuleError{Index: i, Name: r.Name, Err: err}
		}
		r.Action = action
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, &RuleError{Index: i, Name: r.Name, Err: err}
		}
		r.re = re
		set.Rules = append(set.Rules, &r)
	}
	return set, nil
}

// parseAction normalizes an action name. Unknown names are rejected so a
// typo such as "BLOK" cannot silently turn a rule inert.
func parseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionNone:
		return ActionNone, nil
	case ActionBlock:
		return ActionBlock, nil
	case ActionWarn:
		return ActionWarn, nil
	default:
		return "", fmt.Errorf("unknown action %q (want BLOCK, WARN or empty)", s)
	}
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultYAML returns a commented rule file written by `toolwarden init`.
func DefaultYAML() string {
	return `# toolwarden firewall rules
#
# Each call is rendered as "<tool> key=value ..." (keys sorted, nested values
# flattened) and every pattern is searched in that text, case-insensitively.
# Rules run in file order. The first matching BLOCK rule that does not exempt
# the caller's role stops the call.
#
# Fields:
#   name:       reported in the policy violation
#   pattern:    regular expression
#   action:     BLOCK | WARN | (empty = inert)
#   exceptions: roles the rule does not apply to
rules:
  - name: "No Deletion"
    pattern: "DELETE"
    action: BLOCK
    exceptions:
      - role: ADMIN
  - name: "No Schema Drops"
    pattern: "DROP\\s+(TABLE|DATABASE)"
    action: BLOCK
  - name: "Detach Delete"
    pattern: "DETACH\\s+DELETE"
    action: WARN
`
}
