// Package locker hands out one mutex per name. Entries are dropped when the
// last holder unlocks and nobody else is waiting.
package locker

import (
	"errors"
	"sync"
	"sync/atomic"
)

var ErrNoSuchLock = errors.New("no such lock")

type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu sync.Mutex
	// waiters counts callers that hold or wait for mu
	waiters atomic.Int32
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

func (l *Locker) acquire(name string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*entry)
	}
	e, ok := l.locks[name]
	if !ok {
		e = &entry{}
		l.locks[name] = e
	}
	e.waiters.Add(1)
	return e
}

func (l *Locker) Lock(name string) {
	l.acquire(name).mu.Lock()
}

func (l *Locker) TryLock(name string) bool {
	e := l.acquire(name)
	if e.mu.TryLock() {
		return true
	}
	l.mu.Lock()
	if e.waiters.Add(-1) == 0 {
		delete(l.locks, name)
	}
	l.mu.Unlock()
	return false
}

func (l *Locker) Unlock(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[name]
	if !ok {
		return ErrNoSuchLock
	}
	if e.waiters.Add(-1) == 0 {
		delete(l.locks, name)
	}
	e.mu.Unlock()
	return nil
}

// Size reports how many names currently have a live entry.
func (l *Locker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
