package ops

import (
	"fmt"

	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/guard"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/stream"
	"github.com/streamcv/streamcv/internal/tensor"
)

// Interp selects the resampling filter.
type Interp int

// Supported filters.
const (
	InterpNearest Interp = iota
	InterpLinear
)

func (i Interp) String() string {
	switch i {
	case InterpNearest:
		return "nearest"
	case InterpLinear:
		return "linear"
	default:
		return fmt.Sprintf("Interp(%d)", int(i))
	}
}

// ResizeKernel rescales one batch. Tensors are NHWC. Runs on the stream
// worker; the operator's workspace is scratch memory at the kernel's
// disposal. The CPU reference kernels compute in place and leave it
// untouched.
type ResizeKernel func(op *Resize, dst, src *tensor.Tensor, interp Interp) error

// ResizeVarShapeKernel rescales a variable-shape batch element-wise.
type ResizeVarShapeKernel func(op *Resize, dst, src *tensor.ImageBatchVarShape, interp Interp) error

// Resize rescales images. The operator is stateful: it reserves scratch
// workspace sized for the worst case declared at creation for its
// kernel, so a submission write-locks the operator itself and two
// submissions sharing one instance are serialized by the guard's
// pending-release ordering on the operator's own handle.
type Resize struct {
	Operator
	maxSize  tensor.Size2D
	maxBatch int
	format   tensor.Format

	kernel         ResizeKernel
	varShapeKernel ResizeVarShapeKernel
}

// NewResize creates a resize operator for up to maxBatch images of
// format fmt, none larger than maxSize on either side. The workspace is
// sized once here from those maxima and reused across submissions.
func NewResize(ctx *core.Context, maxSize tensor.Size2D, maxBatch int, fmt tensor.Format) (*Resize, error) {
	if maxBatch <= 0 {
		return nil, status.InvalidArgumentf("non-positive max batch size %d", maxBatch)
	}
	if maxSize.W <= 0 || maxSize.H <= 0 {
		return nil, status.InvalidArgumentf("non-positive max image size %dx%d", maxSize.W, maxSize.H)
	}
	reqs, err := tensor.CalcImageRequirements(maxBatch, maxSize, fmt, 0)
	if err != nil {
		return nil, err
	}
	op := &Resize{
		maxSize:        maxSize,
		maxBatch:       maxBatch,
		format:         fmt,
		kernel:         resizeKernelCPU,
		varShapeKernel: resizeVarShapeKernelCPU,
	}
	if err := op.init(ctx, "Resize", op, reqs.TotalBytes, reqs.Alignment); err != nil {
		return nil, err
	}
	return op, nil
}

// MaxSize returns the largest image the operator accepts.
func (op *Resize) MaxSize() tensor.Size2D { return op.maxSize }

// MaxBatch returns the largest batch the operator accepts.
func (op *Resize) MaxBatch() int { return op.maxBatch }

// Format returns the pixel format fixed at creation.
func (op *Resize) Format() tensor.Format { return op.format }

// Submit resizes a fixed-shape NHWC batch from src's extents to dst's.
func (op *Resize) Submit(st *stream.Stream, dst, src *tensor.Tensor, interp Interp) error {
	if err := op.beginSubmit(); err != nil {
		return err
	}
	defer op.endSubmit()

	if err := op.validateTensor(src, "source"); err != nil {
		return err
	}
	if err := op.validateTensor(dst, "destination"); err != nil {
		return err
	}
	if src.Shape()[0] != dst.Shape()[0] {
		return status.InvalidArgumentf(
			"batch extent mismatch: source %d, destination %d", src.Shape()[0], dst.Shape()[0])
	}

	g := op.submitScope(st)
	defer g.Abort()
	if err := g.Add(guard.LockRead, src); err != nil {
		return err
	}
	if err := g.Add(guard.LockWrite, dst, op); err != nil {
		return err
	}

	kernel := op.kernel
	if err := g.Enqueue(op.Name(), func() error {
		return kernel(op, dst, src, interp)
	}); err != nil {
		return err
	}
	_, err := g.Commit()
	return err
}

// SubmitVarShape resizes each image of src to the extents of the
// corresponding image of dst. Both batches must be uniform in the
// operator's format.
func (op *Resize) SubmitVarShape(st *stream.Stream, dst, src *tensor.ImageBatchVarShape, interp Interp) error {
	if err := op.beginSubmit(); err != nil {
		return err
	}
	defer op.endSubmit()

	if err := op.validateBatch(src, "source"); err != nil {
		return err
	}
	if err := op.validateBatch(dst, "destination"); err != nil {
		return err
	}
	if src.NumImages() != dst.NumImages() {
		return status.InvalidArgumentf(
			"image count mismatch: source %d, destination %d", src.NumImages(), dst.NumImages())
	}

	g := op.submitScope(st)
	defer g.Abort()
	if err := g.Add(guard.LockRead, src); err != nil {
		return err
	}
	if err := g.Add(guard.LockWrite, dst, op); err != nil {
		return err
	}

	kernel := op.varShapeKernel
	if err := g.Enqueue(op.Name(), func() error {
		return kernel(op, dst, src, interp)
	}); err != nil {
		return err
	}
	_, err := g.Commit()
	return err
}

func (op *Resize) validateTensor(t *tensor.Tensor, role string) error {
	if t.Layout() != tensor.LayoutNHWC {
		return status.InvalidArgumentf("%s layout %s, expected %s", role, t.Layout(), tensor.LayoutNHWC)
	}
	if t.DType() != op.format.DType() {
		return status.InvalidArgumentf(
			"%s dtype %s, operator format %s needs %s", role, t.DType(), op.format, op.format.DType())
	}
	s := t.Shape()
	if s[3] != op.format.NumChannels() {
		return status.InvalidArgumentf(
			"%s channel extent %d, operator format %s has %d", role, s[3], op.format, op.format.NumChannels())
	}
	if s[0] > op.maxBatch {
		return status.InvalidArgumentf("%s batch %d exceeds operator maximum %d", role, s[0], op.maxBatch)
	}
	if s[2] > op.maxSize.W || s[1] > op.maxSize.H {
		return status.InvalidArgumentf(
			"%s size %dx%d exceeds operator maximum %dx%d", role, s[2], s[1], op.maxSize.W, op.maxSize.H)
	}
	return nil
}

func (op *Resize) validateBatch(b *tensor.ImageBatchVarShape, role string) error {
	f := b.UniqueFormat()
	if !f.Valid() {
		return status.InvalidArgumentf("%s batch has mixed pixel formats", role)
	}
	if !f.Equal(op.format) {
		return status.InvalidArgumentf("%s batch format %s, operator format %s", role, f, op.format)
	}
	if b.NumImages() > op.maxBatch {
		return status.InvalidArgumentf(
			"%s batch has %d images, operator maximum is %d", role, b.NumImages(), op.maxBatch)
	}
	max := b.MaxSize()
	if max.W > op.maxSize.W || max.H > op.maxSize.H {
		return status.InvalidArgumentf(
			"%s batch max size %dx%d exceeds operator maximum %dx%d",
			role, max.W, max.H, op.maxSize.W, op.maxSize.H)
	}
	return nil
}
