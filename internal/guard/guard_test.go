package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/stream"
)

type res struct {
	table     *handle.Table
	h         handle.Handle
	finalized chan struct{}
}

func (r *res) Kind() handle.Kind { return handle.KindTensor }

func (r *res) Handle() handle.Handle { return r.h }

func (r *res) Finalize() error {
	close(r.finalized)
	return nil
}

func (r *res) destroyed() bool {
	select {
	case <-r.finalized:
		return true
	default:
		return false
	}
}

type fixture struct {
	table *handle.Table
	reg   *Registry
	st    *stream.Stream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{table: handle.NewTable(), reg: NewRegistry()}
	f.st = stream.New(f.table, "test")
	t.Cleanup(func() { _ = f.st.Close() })
	return f
}

func (f *fixture) newRes() *res {
	r := &res{table: f.table, finalized: make(chan struct{})}
	r.h = f.table.Create(r)
	return r
}

func waitDone(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal(msg)
	}
}

func TestCommitDefersReleaseToStreamPosition(t *testing.T) {
	f := newFixture(t)
	src, dst := f.newRes(), f.newRes()

	gate := make(chan struct{})

	g := Begin(f.st, f.table, f.reg)
	defer g.Abort()
	require.NoError(t, g.Add(LockRead, src))
	require.NoError(t, g.Add(LockWrite, dst))
	require.NoError(t, g.Enqueue("kernel", func() error {
		<-gate
		return nil
	}))
	pending, err := g.Commit()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Work has not drained: locks hold, pending retains hold.
	assert.True(t, f.reg.InFlight(src.Handle()))
	assert.Equal(t, 1, f.reg.Writers(dst.Handle()))
	for _, p := range pending {
		assert.False(t, p.Resolved())
	}

	close(gate)
	require.NoError(t, f.st.Sync())

	for _, p := range pending {
		assert.True(t, p.Resolved())
	}
	assert.False(t, f.reg.InFlight(src.Handle()))
	assert.False(t, f.reg.InFlight(dst.Handle()))
	assert.Zero(t, f.table.PendingCount(src.Handle()))
}

func TestDestroyDuringFlightDefersFree(t *testing.T) {
	f := newFixture(t)
	r := f.newRes()

	gate := make(chan struct{})

	g := Begin(f.st, f.table, f.reg)
	defer g.Abort()
	require.NoError(t, g.Add(LockWrite, r))
	require.NoError(t, g.Enqueue("kernel", func() error {
		<-gate
		return nil
	}))
	_, err := g.Commit()
	require.NoError(t, err)

	// Caller drops their reference mid-flight. The handle goes stale but
	// the object must survive until the stream drains.
	require.NoError(t, f.table.DecRef(r.Handle()))
	_, err = f.table.Resolve(r.Handle())
	assert.ErrorIs(t, err, status.ErrInvalidHandle)
	assert.False(t, r.destroyed(), "resource freed while device work in flight")

	close(gate)
	require.NoError(t, f.st.Sync())
	waitDone(t, r.finalized, "resource never freed after stream drained")
}

func TestWriteReleasesInSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	out := f.newRes()

	submit := func(gate chan struct{}) *PendingRelease {
		g := Begin(f.st, f.table, f.reg)
		defer g.Abort()
		require.NoError(t, g.Add(LockWrite, out))
		require.NoError(t, g.Enqueue("kernel", func() error {
			<-gate
			return nil
		}))
		pending, err := g.Commit()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		return pending[0]
	}

	gate1, gate2 := make(chan struct{}), make(chan struct{})
	first := submit(gate1)
	second := submit(gate2)

	assert.Equal(t, 2, f.reg.Writers(out.Handle()))

	// Releasing the first submission must not release the second.
	close(gate1)
	require.Eventually(t, first.Resolved, time.Second, time.Millisecond,
		"first submission never resolved")
	assert.False(t, second.Resolved(), "second WRITE resolved before its work completed")
	assert.Equal(t, 1, f.reg.Writers(out.Handle()))

	close(gate2)
	require.NoError(t, f.st.Sync())
	assert.True(t, second.Resolved())
	assert.Zero(t, f.reg.Writers(out.Handle()))
}

func TestReadAfterWriteReleasesInSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	buf := f.newRes()

	submit := func(mode LockMode, gate chan struct{}) *PendingRelease {
		g := Begin(f.st, f.table, f.reg)
		defer g.Abort()
		require.NoError(t, g.Add(mode, buf))
		require.NoError(t, g.Enqueue("kernel", func() error {
			<-gate
			return nil
		}))
		pending, err := g.Commit()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		return pending[0]
	}

	wgate, rgate := make(chan struct{}), make(chan struct{})
	write := submit(LockWrite, wgate)
	read := submit(LockRead, rgate)

	assert.Equal(t, 1, f.reg.Writers(buf.Handle()))
	assert.Equal(t, 1, f.reg.Readers(buf.Handle()))

	// Unblocking the later READ first must not resolve it ahead of the
	// WRITE it queued behind.
	close(rgate)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, read.Resolved(), "READ resolved before the preceding WRITE")
	assert.False(t, write.Resolved())

	close(wgate)
	require.NoError(t, f.st.Sync())
	assert.True(t, write.Resolved())
	assert.True(t, read.Resolved())
	assert.False(t, f.reg.InFlight(buf.Handle()))
}

func TestCommitAfterCloseReleasesWithoutRunningWork(t *testing.T) {
	f := newFixture(t)
	r := f.newRes()

	ran := false
	g := Begin(f.st, f.table, f.reg)
	defer g.Abort()
	require.NoError(t, g.Add(LockWrite, r))
	require.NoError(t, g.Enqueue("kernel", func() error {
		ran = true
		return nil
	}))

	// The stream closes between staging the work and committing it. The
	// work must never reach the queue, so the immediate release cannot
	// strand a kernel against a freed resource.
	require.NoError(t, f.st.Close())
	_, err := g.Commit()
	assert.ErrorIs(t, err, status.ErrInvalidHandle)
	assert.False(t, ran, "device work ran although the commit failed")
	assert.Zero(t, f.table.PendingCount(r.Handle()))

	require.NoError(t, f.table.DecRef(r.Handle()))
	waitDone(t, r.finalized, "resource never freed after the failed commit")
}

func TestConflictingLockModeRejected(t *testing.T) {
	f := newFixture(t)
	r := f.newRes()

	g := Begin(f.st, f.table, f.reg)
	defer g.Abort()
	require.NoError(t, g.Add(LockRead, r))
	err := g.Add(LockWrite, r)
	assert.ErrorIs(t, err, status.ErrConflictingLockMode)
}

func TestAddStaleResourceFails(t *testing.T) {
	f := newFixture(t)
	r := f.newRes()
	require.NoError(t, f.table.DecRef(r.Handle()))

	g := Begin(f.st, f.table, f.reg)
	defer g.Abort()
	err := g.Add(LockRead, r)
	assert.ErrorIs(t, err, status.ErrInvalidHandle)
}

func TestAbortReleasesImmediately(t *testing.T) {
	f := newFixture(t)
	src, dst := f.newRes(), f.newRes()

	g := Begin(f.st, f.table, f.reg)
	require.NoError(t, g.Add(LockRead, src))
	require.NoError(t, g.Add(LockWrite, dst))
	g.Abort()

	assert.False(t, f.reg.InFlight(src.Handle()))
	assert.False(t, f.reg.InFlight(dst.Handle()))
	assert.Zero(t, f.table.PendingCount(src.Handle()))
	assert.Zero(t, f.table.PendingCount(dst.Handle()))

	// Abort after Commit is a no-op; here Commit after Abort must fail.
	_, err := g.Commit()
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestDuplicateAddUpgradesFromNone(t *testing.T) {
	f := newFixture(t)
	op := f.newRes()

	g := Begin(f.st, f.table, f.reg)
	defer g.Abort()
	require.NoError(t, g.Add(LockNone, op))
	require.NoError(t, g.Add(LockWrite, op))

	// One retain, upgraded in place.
	assert.Equal(t, 1, f.table.PendingCount(op.Handle()))
	assert.Equal(t, 1, f.reg.Writers(op.Handle()))

	pending, err := g.Commit()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, LockWrite, pending[0].Mode())
}

func TestConcurrentReadsShareResource(t *testing.T) {
	f := newFixture(t)
	src := f.newRes()

	gate := make(chan struct{})
	for i := 0; i < 3; i++ {
		g := Begin(f.st, f.table, f.reg)
		require.NoError(t, g.Add(LockRead, src))
		require.NoError(t, g.Enqueue("kernel", func() error {
			<-gate
			return nil
		}))
		_, err := g.Commit()
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.reg.Readers(src.Handle()))
	assert.Zero(t, f.reg.Writers(src.Handle()))

	close(gate)
	require.NoError(t, f.st.Sync())
	assert.Zero(t, f.reg.Readers(src.Handle()))
}

func TestCommitOnClosedStreamReleases(t *testing.T) {
	f := newFixture(t)
	r := f.newRes()
	require.NoError(t, f.st.Close())

	g := Begin(f.st, f.table, f.reg)
	require.NoError(t, g.Add(LockWrite, r))
	_, err := g.Commit()
	assert.ErrorIs(t, err, status.ErrInvalidHandle)

	// The failed commit must not leak the retain.
	assert.Zero(t, f.table.PendingCount(r.Handle()))
	assert.False(t, f.reg.InFlight(r.Handle()))
}
