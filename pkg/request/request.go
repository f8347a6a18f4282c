// Package request matches engine operations with responses that arrive
// out-of-band, e.g. group call peeks.
package request

import "sync"

// Requests hands out monotonically increasing ids bound to futures.
// An id is resolved at most once and never reused while outstanding.
// The table enforces no timeout; callers that need one must layer it
// on the returned channel themselves.
type Requests[T any] struct {
	mu          sync.Mutex
	resolveByID map[uint32]chan T
	nextID      uint32
}

func NewRequests[T any]() *Requests[T] {
	return &Requests[T]{
		resolveByID: make(map[uint32]chan T),
	}
}

// Add allocates the next unused positive id and returns it together
// with a channel that yields the response once resolved.
func (r *Requests[T]) Add() (uint32, <-chan T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	ch := make(chan T, 1)
	r.resolveByID[id] = ch
	return id, ch
}

// Resolve completes the future bound to id and reports whether id was
// known. Resolving an unknown id is a caller error, not a crash.
func (r *Requests[T]) Resolve(id uint32, response T) bool {
	r.mu.Lock()
	ch, found := r.resolveByID[id]
	if found {
		delete(r.resolveByID, id)
	}
	r.mu.Unlock()
	if !found {
		return false
	}
	ch <- response
	close(ch)
	return true
}

// Outstanding reports how many requests have not been resolved yet.
func (r *Requests[T]) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resolveByID)
}
