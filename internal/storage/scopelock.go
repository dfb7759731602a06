package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
)

const (
	// LockInitialInterval is the first wait between acquisition attempts.
	LockInitialInterval = 20 * time.Millisecond
	// LockMaxInterval caps the wait between acquisition attempts.
	LockMaxInterval = time.Second
)

var errScopeBusy = errors.New("scope busy")

// ScopeLocker serializes invocations whose scopes overlap. Within one
// process two leases conflict when any of their roots are equal or nested.
// Across processes every lease on a workspace holds a shared flock file, so
// a second process waits until the first has released all of its leases.
type ScopeLocker struct {
	lockDir string

	mu     sync.Mutex
	leases map[*Lease]struct{}
	files  map[string]*sharedFileLock
}

type sharedFileLock struct {
	lock *FileLock
	refs int
}

// Lease is a held scope lock. Release it when the apply phase ends.
type Lease struct {
	locker    *ScopeLocker
	set       *scope.Set
	workspace string
	once      sync.Once
}

// NewScopeLocker creates a locker. lockDir holds the per-workspace flock
// files; an empty lockDir limits locking to this process.
func NewScopeLocker(lockDir string) *ScopeLocker {
	return &ScopeLocker{
		lockDir: lockDir,
		leases:  make(map[*Lease]struct{}),
		files:   make(map[string]*sharedFileLock),
	}
}

// Acquire waits until set does not overlap any held lease and returns a new
// lease. It polls with exponential backoff until ctx is done.
func (l *ScopeLocker) Acquire(ctx context.Context, set *scope.Set) (*Lease, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = LockInitialInterval
	b.MaxInterval = LockMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 1; ; attempt++ {
		lease, err := l.tryAcquire(set)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, errScopeBusy) {
			return nil, err
		}

		wait := b.NextBackOff()
		if attempt == 1 {
			logging.Debug().Str("scope", set.String()).Msg("waiting for overlapping invocation to finish")
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire %s: %w", set, ctx.Err())
		case <-timer.C:
		}
	}
}

// TryAcquire acquires a lease if nothing overlapping is held.
func (l *ScopeLocker) TryAcquire(set *scope.Set) (*Lease, bool, error) {
	lease, err := l.tryAcquire(set)
	if errors.Is(err, errScopeBusy) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lease, true, nil
}

func (l *ScopeLocker) tryAcquire(set *scope.Set) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for held := range l.leases {
		if held.set.Overlaps(set) {
			return nil, errScopeBusy
		}
	}

	workspace := set.Base()
	if l.lockDir != "" {
		shared, ok := l.files[workspace]
		if !ok {
			fl := NewFileLock(l.lockPath(workspace))
			locked, err := fl.TryLock()
			if err != nil {
				return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
			}
			if !locked {
				return nil, errScopeBusy
			}
			shared = &sharedFileLock{lock: fl}
			l.files[workspace] = shared
		}
		shared.refs++
	}

	lease := &Lease{locker: l, set: set, workspace: workspace}
	l.leases[lease] = struct{}{}
	return lease, nil
}

func (l *ScopeLocker) lockPath(workspace string) string {
	sum := sha256.Sum256([]byte(workspace))
	return filepath.Join(l.lockDir, hex.EncodeToString(sum[:8])+".lock")
}

// Held returns the number of leases currently held in this process.
func (l *ScopeLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}

// Set returns the scope the lease covers.
func (le *Lease) Set() *scope.Set { return le.set }

// Release gives up the lease. Releasing twice is a no-op.
func (le *Lease) Release() error {
	var err error
	le.once.Do(func() {
		l := le.locker
		l.mu.Lock()
		defer l.mu.Unlock()

		delete(l.leases, le)
		if shared, ok := l.files[le.workspace]; ok {
			shared.refs--
			if shared.refs == 0 {
				delete(l.files, le.workspace)
				err = shared.lock.Unlock()
			}
		}
	})
	return err
}
