// Package match decides which repository paths are skipped by directory
// sync and link-target listing.
package match

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"dipcp-go/internal/dip"
)

// IgnoreFileName is the per-user ignore file inside the data directory.
const IgnoreFileName = "ignore"

// rule is a parsed ignore pattern with its matching strategy.
type rule struct {
	pattern   string
	matchPath bool // true = match against the path and its parents; false = against single segments
	negate    bool // leading "!": re-include what an earlier rule skipped
}

// Matcher checks repository-relative paths against ignore rules.
// Patterns without '/' match a single path segment.
// Patterns with '/' match the relative path from the repository root or one of its parents.
// Leading and trailing '/' are dropped.
// When several rules match, the last one wins.
type Matcher struct {
	rules []rule
}

var _ dip.Matcher = (*Matcher)(nil)

// New creates a Matcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func New(patterns []string) *Matcher {
	var rules []rule
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var r rule
		if strings.HasPrefix(raw, "!") {
			r.negate = true
			raw = raw[1:]
		}
		raw = strings.Trim(raw, "/")
		if raw == "" {
			continue
		}
		r.pattern = raw
		r.matchPath = strings.Contains(raw, "/")
		rules = append(rules, r)
	}
	return &Matcher{rules: rules}
}

// Len returns the number of rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Match reports whether relativePath should be skipped.
func (m *Matcher) Match(relativePath string) bool {
	if len(m.rules) == 0 {
		return false
	}
	clean := strings.Trim(path.Clean("/"+relativePath), "/")
	if clean == "" {
		return false
	}
	segments := strings.Split(clean, "/")

	ignored := false
	for _, r := range m.rules {
		if r.matches(segments) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(segments []string) bool {
	if r.matchPath {
		// The path itself or any parent directory.
		for i := len(segments); i > 0; i-- {
			candidate := strings.Join(segments[:i], "/")
			if ok, err := path.Match(r.pattern, candidate); err == nil && ok {
				return true
			}
		}
		return false
	}

	for _, seg := range segments {
		ok, err := path.Match(r.pattern, seg)
		if err != nil {
			// Bad pattern; skip rather than fail the sync.
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

// ReadFile reads an ignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ReadFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
