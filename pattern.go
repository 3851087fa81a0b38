package depcache

import (
	"regexp"
	"strings"
)

// compilePattern turns a glob into an anchored, case-insensitive regexp.
// "*" yields nil, meaning "match everything".
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	if pattern == "*" {
		return nil, nil
	}

	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}
