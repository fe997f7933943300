package alloc

import (
	"sync"
)

// sizeClass represents different buffer size categories for pooling.
type sizeClass int

const (
	// smallClass for buffers < 4KB.
	smallClass sizeClass = iota
	// mediumClass for buffers 4KB-1MB.
	mediumClass
	// largeClass for buffers > 1MB.
	largeClass
)

const (
	// Size thresholds for buffer categories.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max buffers per category
)

// Pool reuses buffers from an inner allocator to cut allocation overhead
// on hot submission paths (operator workspaces, staging copies). Buffers
// are categorized by size. Pool itself implements Allocator.
type Pool struct {
	inner Allocator

	mu     sync.Mutex
	small  []*Buffer
	medium []*Buffer
	large  []*Buffer

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewPool creates a pool over the given inner allocator.
func NewPool(inner Allocator) *Pool {
	return &Pool{
		inner:  inner,
		small:  make([]*Buffer, 0, maxPoolSize),
		medium: make([]*Buffer, 0, maxPoolSize),
		large:  make([]*Buffer, 0, maxPoolSize),
	}
}

// Allocate returns a pooled buffer that matches or exceeds the requested
// size and alignment, or falls through to the inner allocator.
func (p *Pool) Allocate(size, align int) (*Buffer, error) {
	p.mu.Lock()

	class := p.classify(size)
	pool := p.getPool(class)

	for i, b := range pool {
		if b.size >= size && b.align >= align {
			p.removeFromPool(class, i)
			p.poolHits++
			p.mu.Unlock()
			return b, nil
		}
	}

	p.poolMisses++
	p.totalAllocated++
	p.mu.Unlock()

	return p.inner.Allocate(size, align)
}

// Free returns a buffer to the pool for reuse. If the pool category is
// full, the buffer goes back to the inner allocator immediately.
func (p *Pool) Free(b *Buffer) {
	if b == nil {
		return
	}

	p.mu.Lock()
	p.totalReleased++

	class := p.classify(b.size)
	pool := p.getPool(class)

	if len(pool) >= maxPoolSize {
		p.mu.Unlock()
		p.inner.Free(b)
		return
	}

	p.addToPool(class, b)
	p.mu.Unlock()
}

// Clear releases all pooled buffers back to the inner allocator.
// Should be called when the owning context is released.
func (p *Pool) Clear() {
	p.mu.Lock()
	buffers := make([]*Buffer, 0, len(p.small)+len(p.medium)+len(p.large))
	buffers = append(buffers, p.small...)
	buffers = append(buffers, p.medium...)
	buffers = append(buffers, p.large...)
	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]
	p.mu.Unlock()

	for _, b := range buffers {
		p.inner.Free(b)
	}
}

// Stats returns statistics about pool usage.
func (p *Pool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses,
		len(p.small) + len(p.medium) + len(p.large)
}

// classify determines the size category for a buffer.
func (p *Pool) classify(size int) sizeClass {
	if size < smallThreshold {
		return smallClass
	}
	if size < mediumThreshold {
		return mediumClass
	}
	return largeClass
}

// getPool returns the pool slice for a given category.
func (p *Pool) getPool(class sizeClass) []*Buffer {
	switch class {
	case smallClass:
		return p.small
	case mediumClass:
		return p.medium
	case largeClass:
		return p.large
	default:
		return nil
	}
}

// addToPool adds a buffer to the appropriate pool category.
func (p *Pool) addToPool(class sizeClass, b *Buffer) {
	switch class {
	case smallClass:
		p.small = append(p.small, b)
	case mediumClass:
		p.medium = append(p.medium, b)
	case largeClass:
		p.large = append(p.large, b)
	}
}

// removeFromPool removes a buffer at index i from the appropriate pool.
func (p *Pool) removeFromPool(class sizeClass, i int) {
	switch class {
	case smallClass:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case mediumClass:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case largeClass:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
