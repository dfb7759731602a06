package storage

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// FileLock is an exclusive flock on a lock file, shared between processes.
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock creates a lock on the file at path. The file is created on
// first use and left in place afterwards.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	l.mu.Lock()

	file, err := l.open()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		l.mu.Unlock()
		return err
	}
	l.file = file
	return nil
}

// TryLock acquires the lock if it is free. It reports false when another
// holder, in this process or another, has it.
func (l *FileLock) TryLock() (bool, error) {
	if !l.mu.TryLock() {
		return false, nil
	}

	file, err := l.open()
	if err != nil {
		l.mu.Unlock()
		return false, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		l.mu.Unlock()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	l.file = file
	return true, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
	l.mu.Unlock()
	return err
}

func (l *FileLock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
}
