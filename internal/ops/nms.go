package ops

import (
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/guard"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/stream"
	"github.com/streamcv/streamcv/internal/tensor"
)

// NMSKernel computes the suppression mask. dst is a [B, N] U8 mask, src
// is a [B, N, 4] F32 box tensor (x, y, width, height), scores is a
// [B, N] F32 tensor. Runs on the stream worker.
type NMSKernel func(dst, src, scores *tensor.Tensor, scoreThreshold, iouThreshold float32) error

// NonMaximumSuppression filters box proposals by score and pairwise IoU
// overlap. The operator is stateless and reentrant: concurrent
// submissions on different streams may share one instance.
type NonMaximumSuppression struct {
	Operator
	kernel NMSKernel
}

// NewNonMaximumSuppression creates an NMS operator.
func NewNonMaximumSuppression(ctx *core.Context) (*NonMaximumSuppression, error) {
	op := &NonMaximumSuppression{kernel: nmsKernelCPU}
	if err := op.init(ctx, "NonMaximumSuppression", op, 0, 0); err != nil {
		return nil, err
	}
	return op, nil
}

// SetKernel swaps the compute kernel. Must not be called while a
// submission is in flight.
func (op *NonMaximumSuppression) SetKernel(k NMSKernel) { op.kernel = k }

// Submit validates the operands, locks them for the duration of the
// device work (src and scores read, dst write, the operator untouched)
// and enqueues the kernel. Returns before the work runs.
func (op *NonMaximumSuppression) Submit(st *stream.Stream, dst, src, scores *tensor.Tensor, scoreThreshold, iouThreshold float32) error {
	if err := op.beginSubmit(); err != nil {
		return err
	}
	defer op.endSubmit()

	if err := validateNMSOperands(dst, src, scores); err != nil {
		return err
	}
	if iouThreshold <= 0 || iouThreshold > 1 {
		return status.InvalidArgumentf("iou threshold %v outside (0, 1]", iouThreshold)
	}

	g := op.submitScope(st)
	defer g.Abort()
	if err := g.Add(guard.LockRead, src, scores); err != nil {
		return err
	}
	if err := g.Add(guard.LockWrite, dst); err != nil {
		return err
	}
	if err := g.Add(guard.LockNone, op); err != nil {
		return err
	}

	kernel := op.kernel
	if err := g.Enqueue(op.Name(), func() error {
		return kernel(dst, src, scores, scoreThreshold, iouThreshold)
	}); err != nil {
		return err
	}
	_, err := g.Commit()
	return err
}

func validateNMSOperands(dst, src, scores *tensor.Tensor) error {
	if src.Rank()-1 != scores.Rank() {
		return status.InvalidArgumentf(
			"scores rank %d must be source rank %d minus one", scores.Rank(), src.Rank())
	}
	if src.Rank() != 3 {
		return status.InvalidArgumentf("source rank %d, expected [B, N, 4]", src.Rank())
	}
	srcShape, scoresShape := src.Shape(), scores.Shape()
	if srcShape[0] != scoresShape[0] {
		return status.InvalidArgumentf(
			"batch extent mismatch: source %d, scores %d", srcShape[0], scoresShape[0])
	}
	if srcShape[1] != scoresShape[1] {
		return status.InvalidArgumentf(
			"proposal extent mismatch: source %d, scores %d", srcShape[1], scoresShape[1])
	}
	if srcShape[2] != 4 {
		return status.InvalidArgumentf("source box extent %d, expected 4 (x, y, w, h)", srcShape[2])
	}
	if src.DType() != tensor.F32 || scores.DType() != tensor.F32 {
		return status.InvalidArgumentf(
			"source and scores must be f32, got %s and %s", src.DType(), scores.DType())
	}
	if !dst.Shape().Equal(scoresShape) {
		return status.InvalidArgumentf(
			"mask shape %v must match scores shape %v", dst.Shape(), scoresShape)
	}
	if dst.DType() != tensor.U8 {
		return status.InvalidArgumentf("mask must be u8, got %s", dst.DType())
	}
	return nil
}
