// Copyright 2025 StreamCV Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops provides the public API for image operators.
//
// Operators can be managed explicitly (create once, submit many times,
// destroy) or through the functional front end, which caches one
// operator per configuration on the context and reuses it across
// calls:
//
//	ctx := core.NewContext()
//	defer ctx.Close()
//	err := ops.Resize(ctx, nil, dst, src, ops.InterpLinear)
//
// A nil stream selects the context's current stream. Every submission
// runs the full lock protocol: inputs are read-locked, outputs
// write-locked, and nothing is released until the stream drains past
// the enqueued work.
package ops

import (
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/ops"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/stream"
	"github.com/streamcv/streamcv/internal/tensor"
)

// Interp selects the resampling filter for Resize.
type Interp = ops.Interp

// Supported filters.
const (
	InterpNearest Interp = ops.InterpNearest
	InterpLinear  Interp = ops.InterpLinear
)

// NonMaximumSuppression is the explicit form of NMS.
type NonMaximumSuppression = ops.NonMaximumSuppression

// ResizeOp is the explicit form of Resize.
type ResizeOp = ops.Resize

// CopyTo is the explicit form of Copy.
type CopyTo = ops.CopyTo

// Operator state observation.
type State = ops.State

// Operator states.
const (
	StateIdle       State = ops.StateIdle
	StateSubmitting State = ops.StateSubmitting
	StateDestroyed  State = ops.StateDestroyed
)

// NewNonMaximumSuppression creates an uncached NMS operator owned by
// the caller.
func NewNonMaximumSuppression(ctx *core.Context) (*NonMaximumSuppression, error) {
	return ops.NewNonMaximumSuppression(ctx)
}

// NewResize creates an uncached resize operator owned by the caller.
func NewResize(ctx *core.Context, maxSize tensor.Size2D, maxBatch int, fmt tensor.Format) (*ResizeOp, error) {
	return ops.NewResize(ctx, maxSize, maxBatch, fmt)
}

// NewCopyTo creates an uncached copy operator owned by the caller.
func NewCopyTo(ctx *core.Context) (*CopyTo, error) {
	return ops.NewCopyTo(ctx)
}

type nmsKey struct{}

type copyKey struct{}

type resizeKey struct {
	w, h, batch int
	format      string
}

func resolve(ctx *core.Context, st *stream.Stream) *stream.Stream {
	if st != nil {
		return st
	}
	return ctx.CurrentStream()
}

// NMS suppresses box proposals by score and IoU overlap, writing a
// per-proposal keep mask. src is [B, N, 4] f32, scores [B, N] f32 and
// dst [B, N] u8. The cached operator is shared by all NMS calls on the
// context.
func NMS(ctx *core.Context, st *stream.Stream, dst, src, scores *tensor.Tensor, scoreThreshold, iouThreshold float32) error {
	obj, err := ctx.Operators().GetOrCreate(nmsKey{}, func() (any, handle.Handle, error) {
		op, err := ops.NewNonMaximumSuppression(ctx)
		if err != nil {
			return nil, 0, err
		}
		return op, op.Handle(), nil
	})
	if err != nil {
		return err
	}
	return obj.(*ops.NonMaximumSuppression).Submit(resolve(ctx, st), dst, src, scores, scoreThreshold, iouThreshold)
}

// Resize rescales a fixed-shape NHWC batch from src's extents to
// dst's. The cached operator is keyed on the worst-case extents of the
// call, so calls with the same shapes share workspace.
func Resize(ctx *core.Context, st *stream.Stream, dst, src *tensor.Tensor, interp Interp) error {
	for _, t := range []*tensor.Tensor{dst, src} {
		if t.Layout() != tensor.LayoutNHWC {
			return status.InvalidArgumentf("resize needs %s tensors, got %s", tensor.LayoutNHWC, t.Layout())
		}
	}
	fmt, err := formatForTensor(src)
	if err != nil {
		return err
	}
	key, maxSize, maxBatch := resizeTensorKey(dst, src, fmt)
	obj, err := ctx.Operators().GetOrCreate(key, func() (any, handle.Handle, error) {
		op, err := ops.NewResize(ctx, maxSize, maxBatch, fmt)
		if err != nil {
			return nil, 0, err
		}
		return op, op.Handle(), nil
	})
	if err != nil {
		return err
	}
	return obj.(*ops.Resize).Submit(resolve(ctx, st), dst, src, interp)
}

// ResizeVarShape rescales each image of src to the extents of the
// corresponding image of dst.
func ResizeVarShape(ctx *core.Context, st *stream.Stream, dst, src *tensor.ImageBatchVarShape, interp Interp) error {
	fmt := src.UniqueFormat()
	max := src.MaxSize().Max(dst.MaxSize())
	batch := src.NumImages()
	if dst.NumImages() > batch {
		batch = dst.NumImages()
	}
	key := resizeKey{w: max.W, h: max.H, batch: batch, format: fmt.String()}
	obj, err := ctx.Operators().GetOrCreate(key, func() (any, handle.Handle, error) {
		op, err := ops.NewResize(ctx, max, batch, fmt)
		if err != nil {
			return nil, 0, err
		}
		return op, op.Handle(), nil
	})
	if err != nil {
		return err
	}
	return obj.(*ops.Resize).SubmitVarShape(resolve(ctx, st), dst, src, interp)
}

// Copy enqueues a stream-ordered full-buffer copy between
// layout-identical tensors.
func Copy(ctx *core.Context, st *stream.Stream, dst, src *tensor.Tensor) error {
	obj, err := ctx.Operators().GetOrCreate(copyKey{}, func() (any, handle.Handle, error) {
		op, err := ops.NewCopyTo(ctx)
		if err != nil {
			return nil, 0, err
		}
		return op, op.Handle(), nil
	})
	if err != nil {
		return err
	}
	return obj.(*ops.CopyTo).Submit(resolve(ctx, st), dst, src)
}

func resizeTensorKey(dst, src *tensor.Tensor, fmt tensor.Format) (resizeKey, tensor.Size2D, int) {
	srcSize := tensor.Size2D{W: src.Shape()[2], H: src.Shape()[1]}
	dstSize := tensor.Size2D{W: dst.Shape()[2], H: dst.Shape()[1]}
	max := srcSize.Max(dstSize)
	batch := src.Shape()[0]
	if dst.Shape()[0] > batch {
		batch = dst.Shape()[0]
	}
	return resizeKey{w: max.W, h: max.H, batch: batch, format: fmt.String()}, max, batch
}

func formatForTensor(t *tensor.Tensor) (tensor.Format, error) {
	return tensor.FormatForChannels(t.DType(), t.Shape()[len(t.Shape())-1])
}
