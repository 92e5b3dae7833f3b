package codeindex

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultExcludes keeps third-party, generated and test trees out of the
// index. Payload excludes are added on top, never instead.
var defaultExcludes = []string{
	"vendor/**",
	"**/vendor/**",
	"testdata/**",
	"**/testdata/**",
	".git/**",
	"**/.git/**",
	"**/*_test.go",
}

// PathFilter decides which files under the root get indexed. Patterns are
// doublestar globs matched against the slash-separated root-relative path.
// Excludes win; when no includes are given everything not excluded passes.
type PathFilter struct {
	includes []string
	excludes []string
}

// NewPathFilter compiles the include and exclude globs. Blank patterns are
// dropped.
func NewPathFilter(includes, excludes []string) *PathFilter {
	f := &PathFilter{
		excludes: append([]string{}, defaultExcludes...),
	}
	for _, g := range excludes {
		if g = strings.TrimSpace(g); g != "" {
			f.excludes = append(f.excludes, g)
		}
	}
	for _, g := range includes {
		if g = strings.TrimSpace(g); g != "" {
			f.includes = append(f.includes, g)
		}
	}
	return f
}

// Accept reports whether the root-relative path passes the filter.
func (f *PathFilter) Accept(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range f.excludes {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	if len(f.includes) == 0 {
		return true
	}
	for _, g := range f.includes {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
