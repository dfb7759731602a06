// Package scope confines workspace mutations to a set of root directories.
//
// A Set is built once per apply phase from the bound template scope and the
// plan's suggested roots. A Guard answers, for any path, whether a mutation
// there is authorized. Containment is decided lexically: relative paths are
// joined to the workspace base, "." and ".." are resolved with
// filepath.Clean, and the result must equal or sit below one of the roots.
// Nothing is expanded; "~" and "$HOME" are ordinary path segments.
package scope

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is an immutable collection of authorized root prefixes plus
// exclusion globs. Exclusions are doublestar patterns matched against the
// slash path relative to the workspace base and to the matching root.
type Set struct {
	base    string
	roots   []string
	exclude []string
}

// NewSet resolves roots against base. An empty roots list authorizes the
// whole base. Roots that resolve outside base are rejected.
func NewSet(base string, roots, exclude []string) (*Set, error) {
	if base == "" {
		return nil, fmt.Errorf("scope: empty workspace base")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("scope: resolve base: %w", err)
	}

	s := &Set{base: abs}

	if len(roots) == 0 {
		s.roots = []string{abs}
	}
	seen := map[string]bool{}
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		resolved := resolve(abs, root)
		if !within(abs, resolved) {
			return nil, fmt.Errorf("scope: root %q resolves outside the workspace %s", root, abs)
		}
		if !seen[resolved] {
			seen[resolved] = true
			s.roots = append(s.roots, resolved)
		}
	}
	if len(s.roots) == 0 {
		s.roots = []string{abs}
	}
	sort.Strings(s.roots)

	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("scope: invalid exclude pattern %q", pattern)
		}
		s.exclude = append(s.exclude, pattern)
	}
	return s, nil
}

// Base returns the absolute workspace base.
func (s *Set) Base() string { return s.base }

// Roots returns the absolute root prefixes, sorted.
func (s *Set) Roots() []string { return append([]string(nil), s.roots...) }

// Exclude returns the exclusion globs.
func (s *Set) Exclude() []string { return append([]string(nil), s.exclude...) }

// Resolve maps path to the absolute, cleaned path the guard reasons about.
func (s *Set) Resolve(path string) string { return resolve(s.base, path) }

// Narrow restricts the set to the suggested roots that lie inside it.
// Suggestions outside the set are returned as dropped. When no suggestion
// survives, the set is returned unchanged.
func (s *Set) Narrow(suggested []string) (*Set, []string) {
	var kept []string
	var dropped []string
	for _, root := range suggested {
		if strings.TrimSpace(root) == "" {
			continue
		}
		resolved := resolve(s.base, root)
		if _, ok := s.rootOf(resolved); ok {
			kept = append(kept, resolved)
		} else {
			dropped = append(dropped, root)
		}
	}
	if len(kept) == 0 {
		return s, dropped
	}
	narrowed, err := NewSet(s.base, kept, s.exclude)
	if err != nil {
		return s, suggested
	}
	return narrowed, dropped
}

// Overlaps reports whether any root of s equals, contains or is contained
// by any root of other.
func (s *Set) Overlaps(other *Set) bool {
	for _, a := range s.roots {
		for _, b := range other.roots {
			if within(a, b) || within(b, a) {
				return true
			}
		}
	}
	return false
}

func (s *Set) String() string {
	return fmt.Sprintf("scope%v", s.roots)
}

func (s *Set) rootOf(resolved string) (string, bool) {
	// Longest match first so the root-relative path is the tightest one.
	for i := len(s.roots) - 1; i >= 0; i-- {
		if within(s.roots[i], resolved) {
			return s.roots[i], true
		}
	}
	return "", false
}

func (s *Set) excluded(root, resolved string) (string, bool) {
	if len(s.exclude) == 0 {
		return "", false
	}
	candidates := []string{relSlash(s.base, resolved)}
	if root != s.base {
		candidates = append(candidates, relSlash(root, resolved))
	}
	for _, rel := range candidates {
		if rel == "." {
			continue
		}
		// Test the path and each of its ancestors so "node_modules" also
		// excludes everything below it.
		segments := strings.Split(rel, "/")
		for i := len(segments); i > 0; i-- {
			prefix := strings.Join(segments[:i], "/")
			for _, pattern := range s.exclude {
				if ok, _ := doublestar.Match(pattern, prefix); ok {
					return pattern, true
				}
			}
		}
	}
	return "", false
}

func resolve(base, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path)
}

// within checks if path is dir or below it. Both must be clean.
func within(dir, path string) bool {
	if path == dir {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

func relSlash(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
