package codeindex

import "testing"

func TestPathFilterDefaults(t *testing.T) {
	f := NewPathFilter(nil, nil)

	tests := []struct {
		name string
		rel  string
		want bool
	}{
		{"root level file", "main.go", true},
		{"nested source", "internal/app/service.go", true},
		{"vendor at root", "vendor/lib/lib.go", false},
		{"nested vendor", "internal/vendor/lib/lib.go", false},
		{"testdata at root", "testdata/fixture.go", false},
		{"nested testdata", "pkg/testdata/fixture.go", false},
		{"git internals", ".git/hooks/prepare.go", false},
		{"test file at root", "service_test.go", false},
		{"nested test file", "internal/app/service_test.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Accept(tt.rel); got != tt.want {
				t.Errorf("Accept(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestPathFilterIncludes(t *testing.T) {
	f := NewPathFilter([]string{"internal/**"}, nil)

	if !f.Accept("internal/app/service.go") {
		t.Error("expected a path under internal/ to pass")
	}
	if f.Accept("cmd/main.go") {
		t.Error("expected a path outside the includes to be rejected")
	}
}

func TestPathFilterExcludesWin(t *testing.T) {
	f := NewPathFilter([]string{"**/*.go"}, []string{"internal/secret/**"})

	if f.Accept("internal/secret/keys.go") {
		t.Error("expected the payload exclude to override the include")
	}
	if f.Accept("vendor/lib/lib.go") {
		t.Error("expected the default excludes to stay active")
	}
	if !f.Accept("internal/app/service.go") {
		t.Error("expected a non-excluded match to pass")
	}
}

func TestPathFilterBlankPatternsDropped(t *testing.T) {
	f := NewPathFilter([]string{"  ", ""}, []string{" "})

	// Blank includes collapse to "no includes", so everything not excluded
	// still passes.
	if !f.Accept("cmd/main.go") {
		t.Error("expected blank includes to be ignored")
	}
}
