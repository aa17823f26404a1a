// Package lock provides per-key mutual exclusion.
// Admission takes the lock keyed by user id so the overlap check and the
// activity insert of one user never interleave; scheduled jobs take it keyed
// by job name as an in-flight guard.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// keyMutex is a channel-backed mutex that supports cancellable acquisition.
// refs counts holders and waiters so idle keys can be dropped.
type keyMutex struct {
	ch   chan struct{}
	refs int
}

// KeyedLock serializes work per string key.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[string]*keyMutex
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[string]*keyMutex)}
}

// acquire returns the mutex for key, creating it if necessary, and registers
// the caller as a reference.
func (l *KeyedLock) acquire(key string) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.entries[key]
	if !ok {
		m = &keyMutex{ch: make(chan struct{}, 1)}
		l.entries[key] = m
	}
	m.refs++
	return m
}

// release drops a reference and forgets the key once nobody holds or waits on it.
func (l *KeyedLock) release(key string, m *keyMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the lock for key is held.
func (l *KeyedLock) Lock(key string) {
	m := l.acquire(key)
	m.ch <- struct{}{}
}

// Unlock releases the lock for key. Unlocking a key that is not held is a no-op.
func (l *KeyedLock) Unlock(key string) {
	l.mu.Lock()
	m, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.ch:
		l.release(key, m)
	default:
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (l *KeyedLock) TryLock(key string) bool {
	m := l.acquire(key)
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		l.release(key, m)
		return false
	}
}

// LockContext blocks until the lock for key is held or ctx is done.
func (l *KeyedLock) LockContext(ctx context.Context, key string) error {
	m := l.acquire(key)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, m)
		return ctx.Err()
	}
}

// LockWithTimeout attempts to acquire the lock within timeout.
// Returns true if the lock was acquired, false if the timeout elapsed or ctx was cancelled.
func (l *KeyedLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return l.LockContext(timeoutCtx, key) == nil
}

// WithLock executes fn while holding the lock for key.
func (l *KeyedLock) WithLock(key string, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key. It returns
// ErrLockTimeout when the lock is not obtained within timeout, and the
// context error when ctx itself is cancelled first.
func (l *KeyedLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.LockContext(timeoutCtx, key); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return err
	}
	defer l.Unlock(key)

	return fn()
}

// IsLocked checks if key is currently held.
// Note: This is a point-in-time check and may change immediately after.
func (l *KeyedLock) IsLocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.entries[key]
	return ok && len(m.ch) == 1
}

// Len returns the number of keys currently held or waited on.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
