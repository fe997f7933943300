package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/status"
)

func newTestStream(t *testing.T, name string) *Stream {
	t.Helper()
	s := New(handle.NewTable(), name)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkRunsInSubmissionOrder(t *testing.T) {
	s := newTestStream(t, "order")

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, s.Enqueue("step", func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, s.Sync())

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "work item ran out of order")
	}
}

func TestMarkerFiresAfterPrecedingWork(t *testing.T) {
	s := newTestStream(t, "marker")

	release := make(chan struct{})
	ran := false
	require.NoError(t, s.Enqueue("gated", func() error {
		<-release
		ran = true
		return nil
	}))

	m, err := s.RecordMarker()
	require.NoError(t, err)
	assert.False(t, m.Done(), "marker fired before preceding work completed")

	close(release)
	m.Wait()
	assert.True(t, ran, "marker fired but preceding work had not run")
}

func TestOnDoneAfterFireRunsImmediately(t *testing.T) {
	s := newTestStream(t, "late-callback")

	m, err := s.RecordMarker()
	require.NoError(t, err)
	m.Wait()

	called := make(chan struct{})
	m.OnDone(func() { close(called) })
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("OnDone callback on a fired marker never ran")
	}
}

func TestDeviceErrorIsStickyAndSkipsWork(t *testing.T) {
	s := newTestStream(t, "faulty")

	boom := errors.New("simulated fault")
	require.NoError(t, s.Enqueue("explode", func() error { return boom }))

	skipped := true
	require.NoError(t, s.Enqueue("after-fault", func() error {
		skipped = false
		return nil
	}))

	err := s.Sync()
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrDevice)
	assert.True(t, skipped, "work after a device fault must be skipped")

	// The error stays sticky on later syncs.
	assert.ErrorIs(t, s.Sync(), status.ErrDevice)
}

func TestMarkersFireOnPoisonedStream(t *testing.T) {
	s := newTestStream(t, "poisoned")

	require.NoError(t, s.Enqueue("explode", func() error { return errors.New("fault") }))
	m, err := s.RecordMarker()
	require.NoError(t, err)

	done := make(chan struct{})
	m.OnDone(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("marker never fired on poisoned stream; pending releases would leak")
	}
}

func TestSubmitPairsWorkWithItsMarker(t *testing.T) {
	s := newTestStream(t, "submit")

	release := make(chan struct{})
	ran := false
	m, err := s.Submit("gated", func() error {
		<-release
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, m.Done(), "marker fired before its work completed")

	close(release)
	m.Wait()
	assert.True(t, ran)
}

func TestSubmitAfterCloseQueuesNothing(t *testing.T) {
	s := newTestStream(t, "submit-closed")
	require.NoError(t, s.Close())

	ran := false
	_, err := s.Submit("late", func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, status.ErrInvalidHandle)
	assert.False(t, ran, "work ran although submit was rejected")
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	tbl := handle.NewTable()
	s := New(tbl, "closing")
	require.NoError(t, s.Close())

	err := s.Enqueue("late", func() error { return nil })
	assert.ErrorIs(t, err, status.ErrInvalidHandle)
	_, err = s.RecordMarker()
	assert.ErrorIs(t, err, status.ErrInvalidHandle)

	// Idempotent.
	assert.NoError(t, s.Close())
}

func TestCloseDrainsOutstandingWork(t *testing.T) {
	tbl := handle.NewTable()
	s := New(tbl, "draining")

	var ran int
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Enqueue("step", func() error {
			ran++
			return nil
		}))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, 10, ran, "Close returned before the queue drained")
}

func TestDestroyReleasesHandle(t *testing.T) {
	tbl := handle.NewTable()
	s := New(tbl, "owned")
	h := s.Handle()

	_, err := tbl.Resolve(h)
	require.NoError(t, err)

	require.NoError(t, s.Destroy())
	_, err = tbl.Resolve(h)
	assert.ErrorIs(t, err, status.ErrInvalidHandle)
}
