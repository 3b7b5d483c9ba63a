// Package lock serializes writers on a timesheet id, within one process or
// across processes sharing a redis.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/timesheet-approval/internal/application/port"
)

// LocalLocker is an in-process keyed mutex that honours context cancellation
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a new LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

var _ port.Locker = (*LocalLocker)(nil)
