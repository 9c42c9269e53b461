package stream

import (
	"sync"
	"sync/atomic"
)

// Handle identifies one subscription. Handles are unique per Link.
type Handle uint64

type entry[T any] struct {
	handle Handle
	fn     func(T)
}

// Registry is an ordered observer list keyed by subscription handle.
type Registry[T any] struct {
	mu      sync.RWMutex
	seq     *atomic.Uint64
	entries []entry[T]
}

// NewRegistry creates a registry drawing handles from seq. Registries that
// share seq never hand out the same handle.
func NewRegistry[T any](seq *atomic.Uint64) *Registry[T] {
	if seq == nil {
		seq = new(atomic.Uint64)
	}
	return &Registry[T]{seq: seq}
}

func (r *Registry[T]) Subscribe(fn func(T)) Handle {
	h := Handle(r.seq.Add(1))
	r.mu.Lock()
	r.entries = append(r.entries, entry[T]{handle: h, fn: fn})
	r.mu.Unlock()
	return h
}

// Unsubscribe removes h and reports whether it was registered here.
func (r *Registry[T]) Unsubscribe(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.handle == h {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Emit calls every listener in subscription order. Listeners run outside the
// registry lock so they may unsubscribe themselves.
func (r *Registry[T]) Emit(v T) {
	r.mu.RLock()
	snapshot := r.entries
	r.mu.RUnlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
