// ABOUTME: Copy-on-write holder for session state snapshots
// ABOUTME: Writers replace the whole value; readers load without locking
package session

import (
	"sync"
	"sync/atomic"
)

// stateHolder keeps the current snapshot of a session. Update calls are
// serialized and observers are notified in version order; Load never
// blocks. The observer must not call Update.
type stateHolder[T any] struct {
	mu         sync.Mutex
	notifyMu   sync.Mutex
	current    atomic.Pointer[T]
	version    uint64
	setVersion func(*T, uint64)
	onChange   func(T)
}

func newStateHolder[T any](initial T, setVersion func(*T, uint64), onChange func(T)) *stateHolder[T] {
	h := &stateHolder[T]{setVersion: setVersion, onChange: onChange}
	h.current.Store(&initial)
	return h
}

// Load returns the current snapshot
func (h *stateHolder[T]) Load() T {
	return *h.current.Load()
}

// Update replaces the snapshot with fn(current) and notifies the observer.
// The next Update may compute while the observer runs.
func (h *stateHolder[T]) Update(fn func(T) T) T {
	h.mu.Lock()
	next := fn(*h.current.Load())
	h.version++
	h.setVersion(&next, h.version)
	h.current.Store(&next)
	h.notifyMu.Lock()
	h.mu.Unlock()

	if h.onChange != nil {
		h.onChange(next)
	}
	h.notifyMu.Unlock()
	return next
}
