package guard

import (
	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/stream"
)

// Resource is anything carrying a table handle that a submission can
// touch: tensors, images, batches, operators.
type Resource interface {
	Handle() handle.Handle
}

// PendingRelease ties a resource to the stream position at which it
// becomes safe to release or reuse. It is created at commit time and
// resolved by the stream's completion machinery.
type PendingRelease struct {
	h      handle.Handle
	mode   LockMode
	marker *stream.Marker
}

// Handle returns the guarded handle.
func (p *PendingRelease) Handle() handle.Handle { return p.h }

// Mode returns the lock mode the resource was registered under.
func (p *PendingRelease) Mode() LockMode { return p.mode }

// Resolved reports whether the stream has passed the release position.
func (p *PendingRelease) Resolved() bool { return p.marker.Done() }

// Guard is the scope opened around one submission. The protocol is:
//
//	g := guard.Begin(st, table, reg)
//	defer g.Abort()                    // releases on every early exit
//	g.Add(guard.LockRead, src, scores) // before any device work
//	g.Add(guard.LockWrite, dst)
//	g.Enqueue("nms", work)             // the operator's device work
//	return g.Commit()                  // work + marker, deferred releases
//
// The work is held by the guard until Commit, which hands it to the
// stream together with the completion marker in one step. The stream
// therefore never holds work whose releases were already aborted: if
// Commit fails, nothing was enqueued and Abort's immediate release is
// safe.
//
// Abort after a successful Commit is a no-op, so deferring it guarantees
// registered resources are released on every exit path. A Guard is used
// by a single goroutine; concurrent submitters each open their own.
type Guard struct {
	st    *stream.Stream
	table *handle.Table
	reg   *Registry

	entries  []PendingRelease
	modes    map[handle.Handle]LockMode
	workName string
	work     stream.Work
	finished bool
}

// Begin opens a guard scope bound to the target stream.
func Begin(st *stream.Stream, table *handle.Table, reg *Registry) *Guard {
	return &Guard{
		st:    st,
		table: table,
		reg:   reg,
		modes: make(map[handle.Handle]LockMode),
	}
}

// Add registers resources under one lock mode. Each resource's lifetime
// is extended (a pending retain on its handle) so the caller dropping
// their own reference cannot free it while work is in flight. Requesting
// read and write on the same resource within one submission fails with
// status.ErrConflictingLockMode; a stale resource fails with
// status.ErrInvalidHandle. On error the guard stays consistent: resources
// added so far remain registered and are released by Abort.
func (g *Guard) Add(mode LockMode, resources ...Resource) error {
	if g.finished {
		return status.InvalidArgumentf("add on a finished guard")
	}

	for _, r := range resources {
		h := r.Handle()

		if prev, ok := g.modes[h]; ok {
			if conflicts(prev, mode) {
				return status.ConflictingLockModef("resource %#x requested %s and %s in one submission",
					uint64(h), prev, mode)
			}
			if prev == mode || prev == LockWrite || prev == LockRead && mode == LockNone {
				continue // already registered at least as strongly
			}
			// Upgrade from none: the retain exists, only the mode changes.
			g.upgrade(h, mode)
			continue
		}

		if err := g.table.RetainPending(h); err != nil {
			return err
		}
		g.reg.acquire(h, mode)
		g.modes[h] = mode
		g.entries = append(g.entries, PendingRelease{h: h, mode: mode})
	}
	return nil
}

func (g *Guard) upgrade(h handle.Handle, mode LockMode) {
	g.reg.release(h, g.modes[h])
	g.reg.acquire(h, mode)
	g.modes[h] = mode
	for i := range g.entries {
		if g.entries[i].h == h {
			g.entries[i].mode = mode
		}
	}
}

// Enqueue stages the submission's device work. The work does not reach
// the stream until Commit, which queues it and the completion marker
// together.
func (g *Guard) Enqueue(name string, w stream.Work) error {
	if g.finished {
		return status.InvalidArgumentf("enqueue on a finished guard")
	}
	if g.work != nil {
		return status.InvalidArgumentf("guard already holds work %q", g.workName)
	}
	g.workName = name
	g.work = w
	return nil
}

// Commit finalizes the scope: it hands the staged work to the stream
// with a completion marker right behind it and registers one
// PendingRelease per resource. The release, not the commit, is what may
// finally free a resource — firing decrements the pending retain taken
// by Add. Commit never blocks the submitting thread.
func (g *Guard) Commit() ([]*PendingRelease, error) {
	if g.finished {
		return nil, status.InvalidArgumentf("guard committed twice")
	}

	var m *stream.Marker
	var err error
	if g.work != nil {
		m, err = g.st.Submit(g.workName, g.work)
	} else {
		m, err = g.st.RecordMarker()
	}
	if err != nil {
		// Stream already closed. Nothing was enqueued, so no device work
		// can reach these resources: release immediately rather than leak.
		g.Abort()
		return nil, err
	}
	g.finished = true

	pending := make([]*PendingRelease, len(g.entries))
	for i := range g.entries {
		g.entries[i].marker = m
		pending[i] = &g.entries[i]
	}

	m.OnDone(func() {
		for i := range g.entries {
			g.reg.release(g.entries[i].h, g.entries[i].mode)
			g.table.ReleasePending(g.entries[i].h)
		}
	})
	return pending, nil
}

// Abort releases everything registered so far without waiting for any
// stream position. It is the error-path counterpart of Commit and a
// no-op once the guard is finished.
func (g *Guard) Abort() {
	if g.finished {
		return
	}
	g.finished = true

	for i := range g.entries {
		g.reg.release(g.entries[i].h, g.entries[i].mode)
		g.table.ReleasePending(g.entries[i].h)
	}
	g.entries = nil
}
