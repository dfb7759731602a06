package template

import (
	"sync"
)

// Source holds the current registry for a set of directories and swaps it
// atomically on Reload. Readers always see a complete registry.
type Source struct {
	mu       sync.RWMutex
	dirs     []string
	current  *Registry
	lastErr  error
	onReload []func(*Registry, error)
}

// NewSource loads the directories once and returns a source serving the
// result. The load error, if any, is returned alongside a usable source.
func NewSource(dirs ...string) (*Source, error) {
	s := &Source{dirs: append([]string(nil), dirs...)}
	reg, err := Load(s.dirs...)
	s.current = reg
	s.lastErr = err
	return s, err
}

// Registry returns the current registry.
func (s *Source) Registry() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastError returns the error of the most recent load.
func (s *Source) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Lookup resolves name against the current registry.
func (s *Source) Lookup(name string) (*Template, error) {
	return s.Registry().Lookup(name)
}

// Dirs returns the watched directories.
func (s *Source) Dirs() []string {
	return append([]string(nil), s.dirs...)
}

// OnReload registers a callback invoked after every Reload.
func (s *Source) OnReload(fn func(*Registry, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload rereads every directory and replaces the current registry.
func (s *Source) Reload() (*Registry, error) {
	reg, err := Load(s.dirs...)

	s.mu.Lock()
	s.current = reg
	s.lastErr = err
	callbacks := append(([]func(*Registry, error))(nil), s.onReload...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(reg, err)
	}
	return reg, err
}
