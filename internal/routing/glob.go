// Package routing holds the router (§4.4): provider selection, route
// rules (block/passthrough/proxy), model-name glob mapping, and the
// queue selector that picks a concurrency manager for an inbound path.
package routing

import (
	"regexp"
	"strings"
)

// Glob is a compiled single-wildcard pattern, compiled once and reused.
// Only '*' is special (matches any run of characters, including none);
// every other character matches literally. Promoting this to full regexp
// semantics is explicitly against spec.md §9's design notes.
type Glob struct {
	pattern string
	re      *regexp.Regexp
}

// CompileGlob compiles pattern once for repeated matching.
func CompileGlob(pattern string) *Glob {
	var b strings.Builder
	b.WriteByte('^')
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteByte('$')
	return &Glob{pattern: pattern, re: regexp.MustCompile(b.String())}
}

// Match reports whether s satisfies the glob.
func (g *Glob) Match(s string) bool {
	return g.re.MatchString(s)
}

// String returns the original, uncompiled pattern.
func (g *Glob) String() string { return g.pattern }
