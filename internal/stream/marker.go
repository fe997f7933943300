package stream

import "sync"

// Marker is a stream position. It fires exactly once, when the stream's
// worker passes it; continuations attached with OnDone run on the worker
// goroutine at that point, forming the completion queue that resolves
// pending releases without blocking any host thread.
type Marker struct {
	mu        sync.Mutex
	done      bool
	callbacks []func()
	ch        chan struct{}
}

func newMarker() *Marker {
	return &Marker{ch: make(chan struct{})}
}

// Done reports whether the stream has passed the marker.
func (m *Marker) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// OnDone attaches a continuation. If the marker already fired, fn runs
// immediately on the calling goroutine.
func (m *Marker) OnDone(fn func()) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		fn()
		return
	}
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// Wait blocks until the marker fires.
func (m *Marker) Wait() {
	<-m.ch
}

func (m *Marker) fire() {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	close(m.ch)
}
