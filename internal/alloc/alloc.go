// Package alloc defines the device memory collaborator used for tensor
// backing storage and operator workspaces.
//
// The runtime treats allocate/free as opaque calls: thread safety of a
// concrete allocator is its own contract. The host allocator here is the
// default backing; GPU-backed allocators implement the same interface.
package alloc

import (
	"sync"
	"unsafe"

	"github.com/streamcv/streamcv/internal/status"
)

// Allocator hands out device memory blocks.
type Allocator interface {
	// Allocate returns a buffer of at least size bytes whose base address
	// honors align. Fails with status.ErrOutOfMemory.
	Allocate(size, align int) (*Buffer, error)
	// Free returns a buffer to the allocator. The buffer must not be used
	// afterwards.
	Free(*Buffer)
}

// Buffer is a single device memory block.
type Buffer struct {
	size  int
	align int
	host  []byte         // non-nil for host-backed memory
	dev   unsafe.Pointer // opaque device object for GPU backings
}

// NewHostBuffer wraps host memory of the given size.
func NewHostBuffer(size, align int) *Buffer {
	return &Buffer{size: size, align: align, host: make([]byte, size)}
}

// NewDeviceBuffer wraps an opaque device allocation.
func NewDeviceBuffer(dev unsafe.Pointer, size, align int) *Buffer {
	return &Buffer{size: size, align: align, dev: dev}
}

// Size returns the usable byte size.
func (b *Buffer) Size() int { return b.size }

// Align returns the alignment the buffer was allocated with.
func (b *Buffer) Align() int { return b.align }

// Bytes returns the host backing, or nil for device-only buffers.
func (b *Buffer) Bytes() []byte { return b.host }

// DevicePtr returns the opaque device object, or nil for host buffers.
func (b *Buffer) DevicePtr() unsafe.Pointer { return b.dev }

// Host is a byte-slice backed allocator with an optional byte budget.
// A budget of 0 means unlimited; a non-zero budget makes out-of-memory
// paths reproducible in tests.
type Host struct {
	mu     sync.Mutex
	budget int64
	used   int64
}

// NewHost creates a host allocator with the given byte budget (0 = none).
func NewHost(budget int64) *Host {
	return &Host{budget: budget}
}

// Allocate implements Allocator.
func (a *Host) Allocate(size, align int) (*Buffer, error) {
	if size < 0 || align <= 0 {
		return nil, status.InvalidArgumentf("allocate %d bytes align %d", size, align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.budget > 0 && a.used+int64(size) > a.budget {
		return nil, status.OutOfMemoryf("host allocator: %d bytes requested, %d of %d in use",
			size, a.used, a.budget)
	}
	a.used += int64(size)
	return NewHostBuffer(size, align), nil
}

// Free implements Allocator.
func (a *Host) Free(b *Buffer) {
	if b == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used -= int64(b.size)
	b.host = nil
}

// InUse reports the number of live bytes.
func (a *Host) InUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}
