package guard

import (
	"sync"

	"github.com/streamcv/streamcv/internal/handle"
)

// Registry is the host-side lock accounting shared by all guards of one
// device context: per resource, how many in-flight submissions hold it
// under each mode. Single-writer/multiple-reader ordering is enforced at
// stream-scheduling granularity, not here — the device serializes work on
// a stream, and cross-stream hazards are the caller's responsibility —
// so the registry only observes, it never blocks a submitter.
type Registry struct {
	mu    sync.Mutex
	locks map[handle.Handle]*lockState
}

type lockState struct {
	none    int
	readers int
	writers int
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[handle.Handle]*lockState)}
}

func (r *Registry) acquire(h handle.Handle, mode LockMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.locks[h]
	if s == nil {
		s = &lockState{}
		r.locks[h] = s
	}
	switch mode {
	case LockRead:
		s.readers++
	case LockWrite:
		s.writers++
	default:
		s.none++
	}
}

func (r *Registry) release(h handle.Handle, mode LockMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.locks[h]
	if s == nil {
		panic("guard: releasing untracked resource")
	}
	switch mode {
	case LockRead:
		s.readers--
	case LockWrite:
		s.writers--
	default:
		s.none--
	}
	if s.readers < 0 || s.writers < 0 || s.none < 0 {
		panic("guard: unbalanced lock release")
	}
	if s.readers == 0 && s.writers == 0 && s.none == 0 {
		delete(r.locks, h)
	}
}

// Readers reports in-flight read holders of h.
func (r *Registry) Readers(h handle.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.locks[h]; s != nil {
		return s.readers
	}
	return 0
}

// Writers reports in-flight write holders of h.
func (r *Registry) Writers(h handle.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.locks[h]; s != nil {
		return s.writers
	}
	return 0
}

// InFlight reports whether any submission currently holds h.
func (r *Registry) InFlight(h handle.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[h] != nil
}
