// Package core wires the runtime's pieces into a device context: the
// handle table, the lock registry, the allocator, and stream management.
// All state is in-process and tied to one context's lifetime; there is no
// persisted state.
package core

import (
	"sync"

	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/streamcv/streamcv/internal/alloc"
	"github.com/streamcv/streamcv/internal/guard"
	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/stream"
)

// Context is a single device context. It owns the handle table, the
// guard's lock registry, the default allocator (a reuse pool unless
// overridden), and every stream created through it.
type Context struct {
	table     *handle.Table
	locks     *guard.Registry
	allocator alloc.Allocator
	pool      *alloc.Pool // nil when a custom allocator was supplied
	wrappers  *handle.Registry
	opcache   *OpCache

	mu      sync.Mutex
	streams []*stream.Stream
	current *stream.Stream
	closed  bool
}

// Option configures a Context.
type Option func(*Context)

// WithAllocator overrides the default pooled host allocator.
func WithAllocator(a alloc.Allocator) Option {
	return func(c *Context) {
		c.allocator = a
		c.pool = nil
	}
}

// NewContext creates a device context with a default stream.
func NewContext(opts ...Option) *Context {
	pool := alloc.NewPool(alloc.NewHost(0))
	c := &Context{
		table:     handle.NewTable(),
		locks:     guard.NewRegistry(),
		allocator: pool,
		pool:      pool,
		wrappers:  handle.NewRegistry(),
		opcache:   newOpCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current = stream.New(c.table, "default")
	c.streams = append(c.streams, c.current)
	return c
}

// Table returns the handle table.
func (c *Context) Table() *handle.Table { return c.table }

// Locks returns the guard lock registry.
func (c *Context) Locks() *guard.Registry { return c.locks }

// Allocator returns the context allocator.
func (c *Context) Allocator() alloc.Allocator { return c.allocator }

// Wrappers returns the weak-reference lookup cache used to map raw keys
// (buffer pointers, operator configurations) back to their owning
// wrapper objects.
func (c *Context) Wrappers() *handle.Registry { return c.wrappers }

// Operators returns the per-configuration operator cache.
func (c *Context) Operators() *OpCache { return c.opcache }

// CurrentStream returns the stream used when a caller passes none.
func (c *Context) CurrentStream() *stream.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetCurrentStream changes the default stream resolution.
func (c *Context) SetCurrentStream(s *stream.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
}

// NewStream creates a stream owned by the context.
func (c *Context) NewStream(name string) *stream.Stream {
	s := stream.New(c.table, name)
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s
}

// Close drains and closes every stream, clears the buffer pool, and
// reports leaked handles. Close is the hard teardown path; enqueued work
// runs to completion first.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	// Cached operators first: with pending work still draining their
	// frees are deferred to the stream close below.
	err := c.opcache.close(c.table)

	for _, s := range streams {
		err = multierr.Append(err, s.Close())
		err = multierr.Append(err, s.Destroy())
	}

	if c.pool != nil {
		c.pool.Clear()
	}

	if live := c.table.Live(); live > 0 {
		klog.InfoS("context closed with live handles", "count", live)
	}
	return err
}
