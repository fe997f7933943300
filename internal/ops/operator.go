// Package ops implements the operator dispatch contract: the uniform
// create/submit/destroy lifecycle wrapping a compute kernel, operand
// validation before any device enqueue, workspace sizing, and the guard
// protocol around every submission.
//
// The numerical kernels themselves are swappable collaborators; the CPU
// reference kernels in this package stand in for device compute and obey
// the same contract: stream-ordered, no synchronous host side effects on
// the submission path.
package ops

import (
	"sync"
	"sync/atomic"

	"github.com/streamcv/streamcv/internal/alloc"
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/guard"
	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/stream"
)

// State is the operator lifecycle state.
type State int

// Operator states. Submitting covers only the synchronous host-side
// enqueue; the device work it issued keeps running after the operator
// returns to Idle.
const (
	StateIdle State = iota
	StateSubmitting
	StateDestroyed
)

// Operator is the embedded base of every concrete operator: handle
// registration, workspace ownership, and the Idle/Submitting/Destroyed
// lifecycle. Concrete operators embed it and add their Submit methods.
type Operator struct {
	ctx       *core.Context
	h         handle.Handle
	name      string
	workspace *alloc.Buffer

	submitMu   sync.Mutex
	submitting atomic.Bool
}

// init allocates the workspace (if any) and registers self - the concrete
// operator - in the handle table.
func (op *Operator) init(ctx *core.Context, name string, self handle.Object, workspaceBytes, align int) error {
	if workspaceBytes > 0 {
		buf, err := ctx.Allocator().Allocate(workspaceBytes, align)
		if err != nil {
			return err
		}
		op.workspace = buf
	}
	op.ctx = ctx
	op.name = name
	op.h = ctx.Table().Create(self)
	return nil
}

// Kind implements handle.Object.
func (op *Operator) Kind() handle.Kind { return handle.KindOperator }

// Handle returns the operator's handle.
func (op *Operator) Handle() handle.Handle { return op.h }

// Name returns the operator name.
func (op *Operator) Name() string { return op.name }

// Workspace returns the scratch buffer, or nil for stateless operators.
func (op *Operator) Workspace() *alloc.Buffer { return op.workspace }

// WorkspaceBytes returns the scratch size in bytes.
func (op *Operator) WorkspaceBytes() int {
	if op.workspace == nil {
		return 0
	}
	return op.workspace.Size()
}

// State reports the lifecycle state. Submitting covers only the
// host-side enqueue window, not in-flight device work.
func (op *Operator) State() State {
	if _, err := op.ctx.Table().Resolve(op.h); err != nil {
		return StateDestroyed
	}
	if op.submitting.Load() {
		return StateSubmitting
	}
	return StateIdle
}

// beginSubmit serializes host-side submissions on this operator and
// rejects submission after destruction with status.ErrInvalidHandle.
func (op *Operator) beginSubmit() error {
	op.submitMu.Lock()
	if _, err := op.ctx.Table().Resolve(op.h); err != nil {
		op.submitMu.Unlock()
		return err
	}
	op.submitting.Store(true)
	return nil
}

func (op *Operator) endSubmit() {
	op.submitting.Store(false)
	op.submitMu.Unlock()
}

// Destroy drops the operator's strong reference. Like any guarded write,
// destruction cannot race an outstanding submission: pending retains
// taken by the guard defer the actual teardown until the stream drains.
// A second Destroy fails with status.ErrInvalidHandle.
func (op *Operator) Destroy() error {
	return op.ctx.Table().DecRef(op.h)
}

// Finalize implements handle.Finalizer: returns the workspace once the
// operator is truly dead.
func (op *Operator) Finalize() error {
	if op.workspace != nil {
		op.ctx.Allocator().Free(op.workspace)
		op.workspace = nil
	}
	return nil
}

// submitScope opens the guard for one submission. Callers defer the
// returned guard's Abort so every exit path releases.
func (op *Operator) submitScope(st *stream.Stream) *guard.Guard {
	return guard.Begin(st, op.ctx.Table(), op.ctx.Locks())
}
