package handle

import (
	"sync"

	"github.com/streamcv/streamcv/internal/status"
)

// Weak is a non-owning back-reference to a table object. It never extends
// the object's lifetime and must re-validate through Resolve before use.
type Weak struct {
	table *Table
	h     Handle
}

// Downgrade returns a weak reference to h.
func (t *Table) Downgrade(h Handle) Weak {
	return Weak{table: t, h: h}
}

// Handle returns the referenced handle, which may be stale.
func (w Weak) Handle() Handle { return w.h }

// Get resolves the referenced object, failing with status.ErrInvalidHandle
// if it has been destroyed since the weak reference was taken.
func (w Weak) Get() (Object, error) {
	if w.table == nil {
		return nil, status.InvalidHandlef("empty weak reference")
	}
	return w.table.Resolve(w.h)
}

// Registry is a lookup cache keyed by caller-chosen keys (typically a raw
// buffer pointer or an operator configuration) holding weak references,
// e.g. mapping a device buffer back to its owning wrapper. Entries never
// keep their objects alive; stale entries are dropped on lookup.
type Registry struct {
	mu      sync.Mutex
	entries map[any]Weak
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[any]Weak)}
}

// Put records a weak reference under key, replacing any previous entry.
func (r *Registry) Put(key any, w Weak) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = w
}

// Lookup resolves the object cached under key. A destroyed object is
// removed from the registry and reported as a miss.
func (r *Registry) Lookup(key any) (Object, bool) {
	r.mu.Lock()
	w, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	obj, err := w.Get()
	if err != nil {
		r.Delete(key)
		return nil, false
	}
	return obj, true
}

// Delete removes the entry under key, if any.
func (r *Registry) Delete(key any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Len returns the number of cached entries, including stale ones not yet
// swept by Lookup.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
