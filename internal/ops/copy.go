package ops

import (
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/guard"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/stream"
	"github.com/streamcv/streamcv/internal/tensor"
)

// CopyTo is a stream-ordered buffer copy between layout-identical
// tensors. Stateless; useful on its own and as the smallest possible
// exercise of the submission protocol.
type CopyTo struct {
	Operator
}

// NewCopyTo creates a copy operator.
func NewCopyTo(ctx *core.Context) (*CopyTo, error) {
	op := &CopyTo{}
	if err := op.init(ctx, "CopyTo", op, 0, 0); err != nil {
		return nil, err
	}
	return op, nil
}

// Submit enqueues a full-buffer copy from src to dst. The tensors must
// agree in shape, dtype and strides so the copy can move padding bytes
// along with the payload, and must be host-backed; device-resident
// buffers move through the device allocator's transfer paths.
func (op *CopyTo) Submit(st *stream.Stream, dst, src *tensor.Tensor) error {
	if err := op.beginSubmit(); err != nil {
		return err
	}
	defer op.endSubmit()

	if !dst.Shape().Equal(src.Shape()) {
		return status.InvalidArgumentf("shape mismatch: %v vs %v", dst.Shape(), src.Shape())
	}
	if dst.DType() != src.DType() {
		return status.InvalidArgumentf("dtype mismatch: %s vs %s", dst.DType(), src.DType())
	}
	if !stridesEqual(dst.Strides(), src.Strides()) {
		return status.InvalidArgumentf(
			"stride mismatch: %v vs %v", dst.Strides(), src.Strides())
	}
	if dst.Data() == nil || src.Data() == nil {
		return status.InvalidArgumentf("copy needs host-backed tensors; device transfers go through the device allocator")
	}

	g := op.submitScope(st)
	defer g.Abort()
	if err := g.Add(guard.LockRead, src); err != nil {
		return err
	}
	if err := g.Add(guard.LockWrite, dst); err != nil {
		return err
	}
	if err := g.Add(guard.LockNone, op); err != nil {
		return err
	}

	if err := g.Enqueue(op.Name(), func() error {
		copy(dst.Data(), src.Data())
		return nil
	}); err != nil {
		return err
	}
	_, err := g.Commit()
	return err
}

func stridesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
