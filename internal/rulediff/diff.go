// Package rulediff compares two rule sets and classifies each change as
// stricter or looser.
package rulediff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/toolwarden/internal/rules"
)

// Change types.
const (
	Added   = "added"
	Removed = "removed"
	Changed = "changed"
	Moved   = "moved"
)

// RuleChange is one difference for one named rule.
type RuleChange struct {
	Type string `json:"type"`
	Rule string `json:"rule"`
	// Field is set for Changed: pattern, action or exceptions.
	Field   string `json:"field,omitempty"`
	Old     string `json:"old,omitempty"`
	New     string `json:"new,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Result holds the comparison of two rule sets.
type Result struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	OldHash     string       `json:"old_hash"`
	NewHash     string       `json:"new_hash"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two rule sets. Rules are matched by name. Among rules present
// in both, a change of relative order is reported as Moved because the first
// blocking rule is the one reported to callers.
func Diff(old, new *rules.Set) *Result {
	r := &Result{
		OldPath:     old.Path,
		NewPath:     new.Path,
		OldHash:     old.Hash,
		NewHash:     new.Hash,
		RuleChanges: []RuleChange{},
	}

	oldByName := index(old.Rules)
	newByName := index(new.Rules)

	for _, nr := range new.Rules {
		or, ok := oldByName[nr.Name]
		if !ok {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    Added,
				Rule:    nr.Name,
				New:     label(nr),
				Comment: addedComment(nr),
			})
			continue
		}
		diffRule(r, or, nr)
	}

	for _, or := range old.Rules {
		if _, ok := newByName[or.Name]; !ok {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    Removed,
				Rule:    or.Name,
				Old:     label(or),
				Comment: removedComment(or),
			})
		}
	}

	diffOrder(r, old.Rules, new.Rules, oldByName, newByName)

	r.HasChanges = len(r.RuleChanges) > 0
	return r
}

func index(rs []*rules.Rule) map[string]*rules.Rule {
	m := make(map[string]*rules.Rule, len(rs))
	for _, r := range rs {
		if _, dup := m[r.Name]; !dup {
			m[r.Name] = r
		}
	}
	return m
}

func diffRule(r *Result, or, nr *rules.Rule) {
	if or.Pattern != nr.Pattern {
		r.RuleChanges = append(r.RuleChanges, RuleChange{
			Type: Changed, Rule: nr.Name, Field: "pattern",
			Old: or.Pattern, New: nr.Pattern,
		})
	}
	if or.Action != nr.Action {
		r.RuleChanges = append(r.RuleChanges, RuleChange{
			Type: Changed, Rule: nr.Name, Field: "action",
			Old: actionName(or.Action), New: actionName(nr.Action),
			Comment: actionComment(or.Action, nr.Action),
		})
	}
	oldEx, newEx := exceptionNames(or), exceptionNames(nr)
	if !slices.Equal(oldEx, newEx) {
		r.RuleChanges = append(r.RuleChanges, RuleChange{
			Type: Changed, Rule: nr.Name, Field: "exceptions",
			Old: strings.Join(oldEx, ","), New: strings.Join(newEx, ","),
			Comment: exceptionComment(oldEx, newEx),
		})
	}
}

// diffOrder reports rules whose position among the shared rules changed.
func diffOrder(r *Result, oldRules, newRules []*rules.Rule, oldByName, newByName map[string]*rules.Rule) {
	var oldOrder, newOrder []string
	for _, rule := range oldRules {
		if _, ok := newByName[rule.Name]; ok {
			oldOrder = append(oldOrder, rule.Name)
		}
	}
	for _, rule := range newRules {
		if _, ok := oldByName[rule.Name]; ok {
			newOrder = append(newOrder, rule.Name)
		}
	}
	for i, name := range newOrder {
		j := slices.Index(oldOrder, name)
		if j != i {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: Moved, Rule: name,
				Old: fmt.Sprintf("%d", j+1), New: fmt.Sprintf("%d", i+1),
			})
		}
	}
}

func label(r *rules.Rule) string {
	s := fmt.Sprintf("%s /%s/", actionName(r.Action), r.Pattern)
	if ex := exceptionNames(r); len(ex) > 0 {
		s += " except " + strings.Join(ex, ",")
	}
	return s
}

func actionName(a rules.Action) string {
	if a == rules.ActionNone {
		return "inert"
	}
	return string(a)
}

func exceptionNames(r *rules.Rule) []string {
	names := make([]string, 0, len(r.Exceptions))
	for _, e := range r.Exceptions {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

// strength orders actions by how much they restrict a call.
func strength(a rules.Action) int {
	switch a {
	case rules.ActionBlock:
		return 2
	case rules.ActionWarn:
		return 1
	default:
		return 0
	}
}

func actionComment(old, new rules.Action) string {
	if strength(new) > strength(old) {
		return "stricter"
	}
	return "looser"
}

func addedComment(r *rules.Rule) string {
	if r.Action == rules.ActionBlock {
		return "stricter"
	}
	return ""
}

func removedComment(r *rules.Rule) string {
	if r.Action == rules.ActionBlock {
		return "looser"
	}
	return ""
}

// exceptionComment: dropping an exempted role is stricter, adding one looser.
func exceptionComment(old, new []string) string {
	var dropped, added bool
	for _, o := range old {
		if !slices.Contains(new, o) {
			dropped = true
		}
	}
	for _, n := range new {
		if !slices.Contains(old, n) {
			added = true
		}
	}
	switch {
	case dropped && !added:
		return "stricter"
	case added && !dropped:
		return "looser"
	default:
		return ""
	}
}
