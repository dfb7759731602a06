package template

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
)

// templatePattern selects template files inside a command directory.
const templatePattern = "**/*.md"

// maxSuggestions caps the "did you mean" list of a NotFoundError.
const maxSuggestions = 3

// Registry is an immutable set of templates keyed by command name.
type Registry struct {
	templates map[string]*Template
	dirs      []string
}

// Load reads every template under the given directories. Directories are
// searched in order and files within one directory in lexical order, so the
// first definition of a name wins and later duplicates are reported.
// Missing directories are skipped.
//
// A non-nil registry is always returned. When some files fail, the error is
// a *LoadError listing them; the registry holds everything else.
func Load(dirs ...string) (*Registry, error) {
	r := &Registry{
		templates: make(map[string]*Template),
		dirs:      append([]string(nil), dirs...),
	}

	var failures []*ParseError
	for _, dir := range dirs {
		files, err := discover(dir)
		if err != nil {
			failures = append(failures, &ParseError{Path: dir, Reason: err.Error()})
			continue
		}
		for _, rel := range files {
			path := filepath.Join(dir, filepath.FromSlash(rel))
			tmpl, err := ParseFile(path)
			if err != nil {
				failures = append(failures, asParseError(path, err))
				continue
			}
			if tmpl.Name == "" {
				tmpl.Name = nameFromPath(rel)
			}
			if existing, ok := r.templates[tmpl.Name]; ok {
				failures = append(failures, &ParseError{
					Path:   path,
					Reason: fmt.Sprintf("duplicate command name %q (already defined in %s)", tmpl.Name, existing.Path),
				})
				continue
			}
			r.templates[tmpl.Name] = tmpl
		}
	}

	if len(failures) > 0 {
		return r, &LoadError{Errors: failures}
	}
	return r, nil
}

// discover lists template files relative to dir, slash-separated and sorted.
func discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory")
	}

	files, err := doublestar.Glob(os.DirFS(dir), templatePattern)
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if fi, err := fs.Stat(os.DirFS(dir), f); err == nil && fi.Mode().IsRegular() {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// nameFromPath turns "git/commit.md" into "git:commit".
func nameFromPath(rel string) string {
	return strings.ReplaceAll(strings.TrimSuffix(rel, ".md"), "/", ":")
}

func asParseError(path string, err error) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return &ParseError{Path: path, Reason: err.Error()}
}

// Lookup returns the template registered under name.
func (r *Registry) Lookup(name string) (*Template, error) {
	if tmpl, ok := r.templates[name]; ok {
		return tmpl, nil
	}
	return nil, &NotFoundError{Name: name, Suggestions: r.suggest(name)}
}

// List returns all templates sorted by name.
func (r *Registry) List() []*Template {
	out := make([]*Template, 0, len(r.templates))
	for _, tmpl := range r.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	return len(r.templates)
}

// Dirs returns the directories the registry was loaded from.
func (r *Registry) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// suggest ranks known names by edit distance, keeping close matches and
// names that contain the query.
func (r *Registry) suggest(name string) []string {
	type candidate struct {
		name string
		dist int
	}
	limit := len(name)/3 + 1
	if limit < 2 {
		limit = 2
	}

	var candidates []candidate
	for known := range r.templates {
		dist := levenshtein.ComputeDistance(name, known)
		if dist <= limit || (name != "" && strings.Contains(known, name)) {
			candidates = append(candidates, candidate{known, dist})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	var out []string
	for i := 0; i < len(candidates) && i < maxSuggestions; i++ {
		out = append(out, candidates[i].name)
	}
	return out
}
