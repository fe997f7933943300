// Package stream implements the ordered device work queue the runtime
// submits to, together with the completion markers that drive deferred
// resource release.
//
// A Stream executes its work items strictly in submission order on a
// single worker goroutine, which plays the role of the device-side
// timeline: "waiting" for completion is never done by blocking a
// submitting thread, only by attaching continuations to markers. Ordering
// across different streams is unspecified; callers synchronize streams
// explicitly if they share resources.
package stream

import (
	"sync"

	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/status"
)

// Work is one device work item. It runs on the stream's worker goroutine
// and must not touch host state except its declared operands.
type Work func() error

type item struct {
	name   string
	run    Work    // nil for pure markers
	marker *Marker // non-nil for markers
}

// Stream is an ordered device work queue.
type Stream struct {
	name  string
	table *handle.Table
	h     handle.Handle

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []item
	closed bool
	err    error // sticky device error, surfaced on next Sync

	workerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// New creates a stream, registers it in the table, and starts its worker.
func New(table *handle.Table, name string) *Stream {
	s := &Stream{
		name:       defaultName(name),
		table:      table,
		workerDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.h = table.Create(s)
	go s.worker()
	return s
}

func defaultName(name string) string {
	if name == "" {
		return "stream"
	}
	return name
}

// Kind implements handle.Object.
func (s *Stream) Kind() handle.Kind { return handle.KindStream }

// Handle returns the stream's handle.
func (s *Stream) Handle() handle.Handle { return s.h }

// Name returns the stream's name.
func (s *Stream) Name() string { return s.name }

// Enqueue appends work to the stream without blocking. Work enqueued on
// one stream executes in submission order. Fails with
// status.ErrInvalidHandle once the stream is closed.
func (s *Stream) Enqueue(name string, w Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return status.InvalidHandlef("enqueue %q on closed stream %s", name, s.name)
	}
	s.queue = append(s.queue, item{name: name, run: w})
	s.cond.Signal()
	return nil
}

// Submit appends a work item followed by its completion marker as a
// single queue operation. Close cannot slip between the pair: either
// both are queued before the stream closes, so draining fires the
// marker after the work, or neither is and the caller's cleanup is
// safe because nothing will run.
func (s *Stream) Submit(name string, w Work) (*Marker, error) {
	m := newMarker()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, status.InvalidHandlef("submit %q on closed stream %s", name, s.name)
	}
	s.queue = append(s.queue, item{name: name, run: w}, item{name: "marker", marker: m})
	s.cond.Signal()
	return m, nil
}

// RecordMarker enqueues a completion marker at the current stream
// position. The marker fires once the worker passes every item enqueued
// before it.
func (s *Stream) RecordMarker() (*Marker, error) {
	m := newMarker()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, status.InvalidHandlef("record marker on closed stream %s", s.name)
	}
	s.queue = append(s.queue, item{name: "marker", marker: m})
	s.cond.Signal()
	return m, nil
}

// Err returns the sticky device error, if any. The stream keeps executing
// markers after a failure so lifetimes resolve, but skips further work.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Sync blocks the calling goroutine until the stream has drained past
// everything enqueued so far, then reports the sticky device error. Core
// submission paths never call this; it exists for callers and tests.
func (s *Stream) Sync() error {
	m, err := s.RecordMarker()
	if err != nil {
		return err
	}
	m.Wait()
	return s.Err()
}

// Destroy drops the stream's table reference. The worker shuts down when
// the handle is finalized.
func (s *Stream) Destroy() error { return s.table.DecRef(s.h) }

// Finalize implements handle.Finalizer.
func (s *Stream) Finalize() error { return s.Close() }

// Close drains outstanding work, stops the worker, and returns the sticky
// device error combined with any teardown failure. Close is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Signal()
		s.mu.Unlock()

		<-s.workerDone

		s.mu.Lock()
		s.closeErr = s.err
		s.mu.Unlock()
	})
	return s.closeErr
}

// worker is the device-side timeline: it pops items in submission order,
// runs work, and fires markers. A failed work item poisons the stream;
// later work is skipped but markers still fire, so pending releases
// resolve and no resource leaks survive a device fault.
func (s *Stream) worker() {
	defer close(s.workerDone)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		it := s.queue[0]
		s.queue = s.queue[1:]
		poisoned := s.err != nil
		s.mu.Unlock()

		switch {
		case it.marker != nil:
			it.marker.fire()
		case poisoned:
			klog.V(2).InfoS("skipping work on poisoned stream", "stream", s.name, "work", it.name)
		default:
			if err := it.run(); err != nil {
				werr := status.Devicef("stream %s: %s: %v", s.name, it.name, err)
				klog.ErrorS(err, "device work failed", "stream", s.name, "work", it.name)
				s.mu.Lock()
				s.err = multierr.Append(s.err, werr)
				s.mu.Unlock()
			}
		}
	}
}
