package core

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/streamcv/streamcv/internal/handle"
)

// OpCache caches operators per configuration key so repeated dispatch
// calls reuse one operator instead of recreating device state. The cache
// owns a strong reference per entry; Context.Close releases them.
type OpCache struct {
	mu      sync.Mutex
	entries map[any]opEntry
}

type opEntry struct {
	obj any
	h   handle.Handle
}

func newOpCache() *OpCache {
	return &OpCache{entries: make(map[any]opEntry)}
}

// GetOrCreate returns the cached operator under key, creating it with
// create on a miss. create returns the operator and its handle.
func (c *OpCache) GetOrCreate(key any, create func() (any, handle.Handle, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.obj, nil
	}

	obj, h, err := create()
	if err != nil {
		return nil, err
	}
	c.entries[key] = opEntry{obj: obj, h: h}
	return obj, nil
}

// Len returns the number of cached operators.
func (c *OpCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *OpCache) close(table *handle.Table) error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[any]opEntry)
	c.mu.Unlock()

	var err error
	for _, e := range entries {
		err = multierr.Append(err, table.DecRef(e.h))
	}
	return err
}
