package tagquery

import (
	"regexp"
	"strings"
)

type storedTag struct {
	key, value string
	simple     bool
	valid      bool
}

var componentRE = regexp.MustCompile(`^[a-z0-9_-]+$`)

// parseStoredTag normalizes and classifies one raw device tag. Tags whose
// components fall outside ^[a-z0-9_-]+$ are invalid and silently skipped by
// evaluation.
func parseStoredTag(raw string) storedTag {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if norm == "" {
		return storedTag{}
	}
	if key, value, ok := strings.Cut(norm, "="); ok {
		if !componentRE.MatchString(key) || !componentRE.MatchString(value) {
			return storedTag{}
		}
		return storedTag{key: key, value: value, simple: false, valid: true}
	}
	if !componentRE.MatchString(norm) {
		return storedTag{}
	}
	return storedTag{key: norm, value: norm, simple: true, valid: true}
}

// compilePattern builds a matcher function for a query-side value, which may
// contain '*' wildcards: '*' matches any sequence of [a-z0-9_-] characters,
// greedily; consecutive '*' characters collapse to a single wildcard
// ("** ≡ *").
func compilePattern(pattern string) func(value string) bool {
	pattern = strings.ToLower(pattern)
	if !strings.Contains(pattern, "*") {
		literal := pattern
		return func(value string) bool { return value == literal }
	}

	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '*' {
			for i+1 < len(runes) && runes[i+1] == '*' {
				i++
			}
			b.WriteString("[a-z0-9_-]*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(runes[i])))
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	return func(value string) bool { return re.MatchString(value) }
}
