// Package storage persists run records as JSON documents and provides the
// locks that keep concurrent invocations from mutating the same workspace
// roots at once.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage is a keyed JSON document store. A key is a path slice such as
// []string{"run", id}; each key maps to one <key>.json file.
type Storage struct {
	fs       afero.Fs
	basePath string
	mu       sync.Mutex
	locks    map[string]*sync.RWMutex
}

// New creates a store rooted at basePath on the OS filesystem.
func New(basePath string) *Storage {
	return NewWithFs(afero.NewOsFs(), basePath)
}

// NewWithFs creates a store on an arbitrary filesystem.
func NewWithFs(fs afero.Fs, basePath string) *Storage {
	return &Storage{
		fs:       fs,
		basePath: basePath,
		locks:    make(map[string]*sync.RWMutex),
	}
}

// BasePath returns the root directory of the store.
func (s *Storage) BasePath() string { return s.basePath }

func (s *Storage) pathToFile(path []string) string {
	return s.pathToDir(path) + ".json"
}

func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get decodes the document at path into v.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)

	lock := s.getLock(filePath)
	lock.RLock()
	data, err := afero.ReadFile(s.fs, filePath)
	lock.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

// Put writes v at path, replacing any previous document atomically.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.getLock(filePath)
	lock.Lock()
	defer lock.Unlock()

	// Write to a temp file first, then rename over the target.
	tmpPath := filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, filePath); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Delete removes the document at path. Deleting a missing key is not an error.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	filePath := s.pathToFile(path)

	lock := s.getLock(filePath)
	lock.Lock()
	defer lock.Unlock()

	if err := s.fs.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the keys directly below path, sorted.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(items)
	return items, nil
}

// Scan calls fn for every document directly below path, in key order.
// Unreadable files are skipped.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)

	entries, err := afero.ReadDir(s.fs, dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := afero.ReadFile(s.fs, filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// Exists checks if a document exists at path.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	_, err := s.fs.Stat(s.pathToFile(path))
	return err == nil
}

func (s *Storage) getLock(filePath string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[filePath] = lock
	}
	return lock
}
