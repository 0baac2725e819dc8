// Package keylock provides per-key mutual exclusion so writers to different
// keys never contend.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker serializes work per key. The zero value is ready to use.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until the caller holds key, and returns the matching unlock func.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
