package models

import (
	"path/filepath"
	"strings"
)

// RuleKind distinguishes literal prefixes from wildcard patterns
type RuleKind int

const (
	RuleLiteral RuleKind = iota
	RuleGlob
)

// String returns the rule kind name
func (k RuleKind) String() string {
	if k == RuleGlob {
		return "glob"
	}
	return "literal"
}

// ExclusionRule excludes a path by literal prefix or glob pattern
type ExclusionRule struct {
	Kind    RuleKind
	Pattern string
}

// ParseExclusionRule builds a rule from its configuration form.
// Patterns containing '*' or '?' are globs, everything else is a literal prefix.
func ParseExclusionRule(s string) ExclusionRule {
	if strings.ContainsAny(s, "*?") {
		return ExclusionRule{Kind: RuleGlob, Pattern: s}
	}
	return ExclusionRule{Kind: RuleLiteral, Pattern: filepath.Clean(s)}
}

// String returns the configuration form of the rule
func (r ExclusionRule) String() string {
	return r.Kind.String() + ":" + r.Pattern
}
