package template

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a Source when template files change.
type Watcher struct {
	source   *Source
	watcher  *fsnotify.Watcher
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher watches every existing directory of the source, recursively.
func NewWatcher(source *Source, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	for _, dir := range source.Dirs() {
		if err := addTree(w, dir); err != nil {
			w.Close()
			return nil, err
		}
	}

	return &Watcher{
		source:   source,
		watcher:  w,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// addTree adds dir and its subdirectories. Missing directories are skipped.
func addTree(w *fsnotify.Watcher, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTree(w.watcher, ev.Name)
				}
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			reg, err := w.source.Reload()
			if err != nil {
				logging.Warn().Err(err).Int("templates", reg.Len()).Msg("command templates reloaded with errors")
			} else {
				logging.Info().Int("templates", reg.Len()).Msg("command templates reloaded")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("template watcher error")
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if strings.HasSuffix(ev.Name, ".md") {
		return true
	}
	// Directory removals and renames carry no extension.
	return filepath.Ext(ev.Name) == "" && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}

// Watch starts a watcher for the source and stops it when ctx ends.
func (s *Source) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := NewWatcher(s, debounce)
	if err != nil {
		return err
	}
	w.Start()
	go func() {
		<-ctx.Done()
		if err := w.Stop(); err != nil {
			logging.Debug().Err(err).Msg("template watcher close")
		}
	}()
	return nil
}
