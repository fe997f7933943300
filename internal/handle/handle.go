// Package handle implements the reference-counted handle table that lets
// tensors, images, operators, and streams cross the runtime's API boundary
// as opaque values.
//
// A Handle stays resolvable from creation until its last strong reference
// is destroyed. Pending-release retains taken by the resource guard keep
// the backing object alive past that point, but the handle itself goes
// stale: Resolve on a destroyed handle fails with status.ErrInvalidHandle,
// and so does a second destroy. Stale handles are detected via a per-slot
// generation counter, never via pointer validity.
package handle

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/streamcv/streamcv/internal/status"
)

// Kind identifies the type of object behind a handle.
type Kind uint8

// Object kinds managed by the table.
const (
	KindTensor Kind = iota + 1
	KindImage
	KindImageBatch
	KindOperator
	KindAllocator
	KindStream
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindTensor:
		return "tensor"
	case KindImage:
		return "image"
	case KindImageBatch:
		return "imagebatch"
	case KindOperator:
		return "operator"
	case KindAllocator:
		return "allocator"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Handle is an opaque reference to a table-managed object.
// The zero Handle is never valid.
type Handle uint64

// Invalid is the zero handle.
const Invalid Handle = 0

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32 { return uint32(h) } //nolint:gosec // low 32 bits by construction

func (h Handle) generation() uint32 { return uint32(h >> 32) } //nolint:gosec // high 32 bits by construction

// Object is anything the table can own.
type Object interface {
	Kind() Kind
}

// Finalizer is implemented by objects that release backing resources when
// the last strong reference and the last pending release are gone.
type Finalizer interface {
	Finalize() error
}

type slot struct {
	gen     uint32
	refs    int32
	pending int32
	live    bool
	obj     Object
}

// Table is the process-wide object store. All methods are safe for
// concurrent use.
type Table struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{}
}

// Create registers obj and returns a new handle owning one strong reference.
func (t *Table) Create(obj Object) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{gen: 1})
		idx = uint32(len(t.slots) - 1) //nolint:gosec // slot count bounded well below 2^32
	}

	s := &t.slots[idx]
	s.obj = obj
	s.refs = 1
	s.pending = 0
	s.live = true
	t.live++

	return makeHandle(idx, s.gen)
}

// lookup returns the slot for h, or nil if the handle is stale or unknown.
// Caller must hold t.mu. A slot with live == false is returned as nil:
// the handle is already destroyed even if pending work keeps the object.
func (t *Table) lookup(h Handle) *slot {
	idx := h.index()
	if int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if s.gen != h.generation() || !s.live {
		return nil
	}
	return s
}

// Resolve returns the object behind h, failing with status.ErrInvalidHandle
// if h is unknown, stale, or already destroyed.
func (t *Table) Resolve(h Handle) (Object, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return nil, status.InvalidHandlef("resolve %#x", uint64(h))
	}
	return s.obj, nil
}

// IncRef adds a strong reference to the object behind h.
func (t *Table) IncRef(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return status.InvalidHandlef("clone ref %#x", uint64(h))
	}
	s.refs++
	return nil
}

// DecRef drops a strong reference. When the last reference is dropped the
// handle goes stale immediately; the backing object is finalized once no
// pending releases remain. Dropping a reference on an already destroyed
// handle fails with status.ErrInvalidHandle instead of being ignored, so
// lifecycle bugs surface early.
func (t *Table) DecRef(h Handle) error {
	t.mu.Lock()

	s := t.lookup(h)
	if s == nil {
		t.mu.Unlock()
		return status.InvalidHandlef("destroy %#x", uint64(h))
	}

	s.refs--
	if s.refs > 0 {
		t.mu.Unlock()
		return nil
	}

	s.live = false
	t.live--
	if s.pending > 0 {
		// Device work is still in flight. The guard's markers will call
		// ReleasePending and finalize once the stream drains past them.
		t.mu.Unlock()
		return nil
	}

	obj := t.freeSlotLocked(h.index())
	t.mu.Unlock()
	finalize(obj)
	return nil
}

// RefCount reports the strong reference count for h. Mostly for tests and
// lifetime assertions.
func (t *Table) RefCount(h Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return 0, status.InvalidHandlef("refcount %#x", uint64(h))
	}
	return int(s.refs), nil
}

// RetainPending marks one in-flight device use of h. The object cannot be
// finalized until a matching ReleasePending, no matter what the strong
// count does.
func (t *Table) RetainPending(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return status.InvalidHandlef("retain pending %#x", uint64(h))
	}
	s.pending++
	return nil
}

// ReleasePending resolves one pending device use of h. Unlike the other
// methods it accepts a destroyed (stale) handle: this is exactly the case
// where a pending release outlives the caller's last strong reference.
// Unbalanced releases are programming errors and panic immediately.
func (t *Table) ReleasePending(h Handle) {
	t.mu.Lock()

	idx := h.index()
	if int(idx) >= len(t.slots) {
		t.mu.Unlock()
		panic("handle: pending release on unknown handle")
	}
	s := &t.slots[idx]
	if s.gen != h.generation() || s.pending <= 0 {
		t.mu.Unlock()
		panic("handle: unbalanced pending release")
	}

	s.pending--
	if s.live || s.refs > 0 || s.pending > 0 {
		t.mu.Unlock()
		return
	}

	obj := t.freeSlotLocked(idx)
	t.mu.Unlock()
	finalize(obj)
}

// PendingCount reports in-flight uses of h, counting stale handles too so
// teardown paths can observe draining.
func (t *Table) PendingCount(h Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if int(idx) >= len(t.slots) {
		return 0
	}
	s := &t.slots[idx]
	if s.gen != h.generation() {
		return 0
	}
	return int(s.pending)
}

// Live returns the number of live (not yet destroyed) handles.
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// freeSlotLocked detaches the object and recycles the slot. Caller must
// hold t.mu and guarantee refs == 0 && pending == 0.
func (t *Table) freeSlotLocked(idx uint32) Object {
	s := &t.slots[idx]
	if s.pending != 0 {
		panic("handle: freeing object with pending releases")
	}
	obj := s.obj
	s.obj = nil
	s.gen++
	t.free = append(t.free, idx)
	return obj
}

// finalize runs the object's Finalize hook, if any. Finalization happens on
// whatever goroutine dropped the last reference, which may be a stream
// completion worker; failures have no caller to return to, so they are
// logged.
func finalize(obj Object) {
	f, ok := obj.(Finalizer)
	if !ok {
		return
	}
	if err := f.Finalize(); err != nil {
		klog.ErrorS(err, "object finalization failed", "kind", obj.Kind().String())
	}
}
