package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/carebill/ports"
)

// Locker is a process-local keyed mutex implementing ports.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocker creates a keyed locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]chan struct{})}
}

// Lock waits until key is free or ctx ends.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			release := make(chan struct{})
			l.held[key] = release
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(release)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ports.ErrLockTimeout, key, ctx.Err())
		}
	}
}

// Held reports whether key is currently locked.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

var _ ports.Locker = (*Locker)(nil)
