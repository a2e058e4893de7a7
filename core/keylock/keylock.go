// Package keylock provides mutual exclusion scoped to int64 keys.
package keylock

import (
	"slices"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out per-key mutexes and forgets keys nobody holds.
// The zero value is ready to use.
type Locker struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{}
}

// Lock acquires the locks of all keys and returns the function releasing
// them. Keys are taken in ascending order so callers locking overlapping
// sets cannot deadlock. Duplicate keys are locked once.
func (l *Locker) Lock(keys ...int64) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*entry, 0, len(keys))
	for _, k := range keys {
		e := l.acquire(k)
		e.mu.Lock()
		held = append(held, e)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.release(keys[i])
			}
		})
	}
}

// Len reports how many keys are currently locked or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) acquire(k int64) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[int64]*entry)
	}
	e, ok := l.entries[k]
	if !ok {
		e = &entry{}
		l.entries[k] = e
	}
	e.refs++
	return e
}

func (l *Locker) release(k int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[k]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, k)
	}
}
