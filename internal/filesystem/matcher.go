package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pooow/syschange/pkg/models"
)

// fnmatchLiterals escapes the gobwas syntax that fnmatch treats literally:
// brace alternation and backslash escapes
var fnmatchLiterals = strings.NewReplacer(`\`, `\\`, "{", `\{`, "}", `\}`)

// Matcher decides whether a path is excluded from a scan
type Matcher struct {
	rules    []models.ExclusionRule
	literals []string
	globs    []glob.Glob
}

// NewMatcher compiles exclusion patterns. Empty patterns are ignored.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	seen := make(map[string]bool)

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rule := models.ParseExclusionRule(p)
		if seen[rule.String()] {
			continue
		}
		seen[rule.String()] = true

		switch rule.Kind {
		case models.RuleGlob:
			// No separators: '*' crosses '/' like shell fnmatch
			g, err := glob.Compile(fnmatchLiterals.Replace(rule.Pattern))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid exclude pattern %q: %v",
					models.ErrConfiguration, rule.Pattern, err)
			}
			m.globs = append(m.globs, g)
		default:
			m.literals = append(m.literals, rule.Pattern)
		}
		m.rules = append(m.rules, rule)
	}

	return m, nil
}

// IsExcluded reports whether any rule matches path
func (m *Matcher) IsExcluded(path string) bool {
	for _, prefix := range m.literals {
		if hasPathPrefix(path, prefix) {
			return true
		}
	}
	for _, g := range m.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// ExcludesTree reports whether path or any of its ancestors is excluded.
// A scan root below an excluded directory must not be walked.
func (m *Matcher) ExcludesTree(path string) bool {
	for p := filepath.Clean(path); ; {
		if m.IsExcluded(p) {
			return true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}

// Rules returns the compiled rule set
func (m *Matcher) Rules() []models.ExclusionRule {
	return m.rules
}

// hasPathPrefix tests prefix on whole path components:
// "/tmp" matches "/tmp" and "/tmp/x" but not "/tmpfiles".
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
