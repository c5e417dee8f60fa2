// Package joblock serializes lifecycle transitions per job. Local locks work
// within one process; Redis locks extend that across service instances.
package joblock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLocked is returned when a lock could not be acquired before the wait expired.
var ErrLocked = errors.New("lock is held")

const defaultWait = 30 * time.Second

// Local is an in-process keyed mutex. Entries are removed once no caller
// holds or waits for them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

type entry struct {
	slot chan struct{}
	refs int
}

// NewLocal creates a local locker. Waiters give up after wait (default: 30s).
func NewLocal(wait time.Duration) *Local {
	if wait <= 0 {
		wait = defaultWait
	}
	return &Local{
		entries: make(map[string]*entry),
		wait:    wait,
	}
}

// Lock blocks until key is free, ctx is done or the wait expires.
// The returned function releases the lock and is safe to call more than once.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.slot
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	case <-timer.C:
		l.release(key, e)
		return nil, fmt.Errorf("lock %s: %w", key, ErrLocked)
	}
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
