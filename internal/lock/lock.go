// Package lock serializes the read-modify-write cycles on the stat files
// across concurrent hook processes.
package lock

import (
	"sync"

	"github.com/gofrs/flock"
)

// Locker is an exclusive mutual-exclusion primitive. The process-wide
// implementation is FileLock; tests substitute Mutex.
type Locker interface {
	Lock() error
	Unlock() error
}

// FileLock is an advisory, exclusive cross-process file lock. Lock blocks
// until the current holder releases; there is no timeout, since invocations
// are short-lived.
type FileLock struct {
	fl *flock.Flock
}

// NewFileLock returns a lock backed by the file at path. The file is created
// on first acquisition and never removed.
func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

func (l *FileLock) Lock() error {
	return l.fl.Lock()
}

func (l *FileLock) Unlock() error {
	return l.fl.Unlock()
}

// Mutex is an in-process Locker for tests.
type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock() error {
	m.mu.Lock()
	return nil
}

func (m *Mutex) Unlock() error {
	m.mu.Unlock()
	return nil
}

// With runs fn while holding l. The lock is released on every path, including
// a panic inside fn.
func With(l Locker, fn func() error) error {
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}
