// Package domain decides which configured upstream(s) are allowed to answer a given query name. It
// is pure - no I/O, no shared state - and is the smallest of the core components.
package domain

import (
	"strings"
)

// RuleSet is the (includes, excludes) pair controlling which queries an upstream may serve. An
// empty Includes means the rule set is universal - it matches every name regardless of Excludes.
type RuleSet struct {
	Includes []string
	Excludes []string
}

// IsUniversal returns true if this rule set matches every query name.
func (r RuleSet) IsUniversal() bool {
	return len(r.Includes) == 0
}

// Matches reports whether qName is covered by r, per spec §4.1:
//
//  1. An empty Includes list is universal - always true.
//  2. A trailing "." on qName is stripped before comparison.
//  3. Any Excludes match (domain-label boundary) vetoes the match.
//  4. Otherwise any Includes match (domain-label boundary) grants the match.
//  5. Otherwise false.
func Matches(qName string, r RuleSet) bool {
	if r.IsUniversal() {
		return true
	}

	qName = strings.TrimSuffix(qName, ".")

	for _, ex := range r.Excludes {
		if labelSuffixMatch(qName, ex) {
			return false
		}
	}

	for _, in := range r.Includes {
		if labelSuffixMatch(qName, in) {
			return true
		}
	}

	return false
}

// labelSuffixMatch reports whether query matches pattern p on a domain-label boundary: either an
// exact (case-insensitive) match, or query ends with p and the preceding character is a ".". This
// is what stops "evil-example.com" from matching pattern "example.com" while still allowing
// "a.example.com" to match.
func labelSuffixMatch(query, p string) bool {
	if strings.EqualFold(query, p) {
		return true
	}
	if len(query) <= len(p) {
		return false
	}
	suffix := query[len(query)-len(p):]
	if !strings.EqualFold(suffix, p) {
		return false
	}
	return query[len(query)-len(p)-1] == '.'
}
