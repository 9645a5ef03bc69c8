package classify

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// listMatch is the outcome of evaluating one rule list against a path.
// pattern is the winning positive pattern, used for specificity tie-breaks.
type listMatch struct {
	matched bool
	pattern string
}

// matchList evaluates a rule list with last-match-wins semantics: a later
// pattern overrides an earlier one, and a !pattern match negates a prior
// positive match. A file matching no pattern falls through unmatched.
func matchList(patterns []string, relPath string) listMatch {
	var out listMatch
	for _, p := range patterns {
		negate := false
		if strings.HasPrefix(p, "!") {
			negate = true
			p = p[1:]
		}
		if p == "" || !matchPattern(p, relPath) {
			continue
		}
		if negate {
			out = listMatch{}
		} else {
			out = listMatch{matched: true, pattern: p}
		}
	}
	return out
}

// matchPattern matches one glob against a slash-separated relative path.
// A pattern without a slash also matches on the base name, so "*.md"
// behaves the way ignore files have taught people to expect.
func matchPattern(pattern, relPath string) bool {
	if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		base := relPath
		if i := strings.LastIndex(relPath, "/"); i >= 0 {
			base = relPath[i+1:]
		}
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
