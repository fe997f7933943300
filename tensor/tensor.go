// Copyright 2025 StreamCV Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for data objects: tensors,
// images and variable-shape image batches, together with the shape,
// layout and pixel-format descriptions the runtime allocates them from.
//
// Constructors bind objects to a core.Context, which owns their handles
// and backing memory:
//
//	ctx := core.NewContext()
//	defer ctx.Close()
//	t, err := tensor.New(ctx, tensor.Shape{1, 224, 224, 3}, tensor.NHWC, tensor.U8)
//	defer t.Destroy()
package tensor

import (
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/tensor"
)

// Shape holds per-axis extents, outermost first.
type Shape = tensor.Shape

// Layout names the axes of a shape, e.g. NHWC.
type Layout = tensor.Layout

// Standard layouts.
const (
	NHWC Layout = tensor.LayoutNHWC
	NCHW Layout = tensor.LayoutNCHW
	HWC  Layout = tensor.LayoutHWC
	NW   Layout = tensor.LayoutNW
	NWC  Layout = tensor.LayoutNWC
)

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	U8  DataType = tensor.U8
	U16 DataType = tensor.U16
	S16 DataType = tensor.S16
	S32 DataType = tensor.S32
	F32 DataType = tensor.F32
	F64 DataType = tensor.F64
)

// Size2D is a width/height pair.
type Size2D = tensor.Size2D

// Format describes a pixel format: element type plus plane structure.
type Format = tensor.Format

// Built-in pixel formats.
var (
	FormatU8    = tensor.FormatU8
	FormatRGB8  = tensor.FormatRGB8
	FormatRGBA8 = tensor.FormatRGBA8
	FormatF32   = tensor.FormatF32
	FormatNV12  = tensor.FormatNV12
)

// Descriptor is the immutable shape/stride/alignment description of a
// tensor, fixed at creation.
type Descriptor = tensor.Descriptor

// Requirements describe the memory an allocation needs.
type Requirements = tensor.Requirements

// ImageRequirements describe the per-plane layout of an image batch.
type ImageRequirements = tensor.ImageRequirements

// Tensor is a dense n-dimensional array with alignment-padded rows.
type Tensor = tensor.Tensor

// Image is a single image with per-plane storage.
type Image = tensor.Image

// ImageBatchVarShape collects same-format, differently sized images
// processed as one logical operand.
type ImageBatchVarShape = tensor.ImageBatchVarShape

// CalcRequirements computes total size and per-axis byte strides for a
// shape, rounding row starts up to align (0 means the default).
func CalcRequirements(shape Shape, dtype DataType, align int) (Requirements, error) {
	return tensor.CalcRequirements(shape, dtype, align)
}

// CalcImageRequirements computes the layout for numImages same-sized
// images of the given format.
func CalcImageRequirements(numImages int, size Size2D, fmt Format, align int) (ImageRequirements, error) {
	return tensor.CalcImageRequirements(numImages, size, fmt, align)
}

// New allocates a tensor from the context's allocator. Destroy drops
// the caller's reference; memory is reclaimed once no in-flight device
// work holds the tensor.
func New(ctx *core.Context, shape Shape, layout Layout, dtype DataType) (*Tensor, error) {
	return tensor.NewTensor(ctx.Table(), ctx.Allocator(), shape, layout, dtype, 0)
}

// NewAligned is New with an explicit row alignment.
func NewAligned(ctx *core.Context, shape Shape, layout Layout, dtype DataType, align int) (*Tensor, error) {
	return tensor.NewTensor(ctx.Table(), ctx.Allocator(), shape, layout, dtype, align)
}

// NewForImages allocates an NHWC tensor shaped like a batch of
// numImages same-sized images.
func NewForImages(ctx *core.Context, numImages int, size Size2D, fmt Format) (*Tensor, error) {
	return tensor.NewTensorForImages(ctx.Table(), ctx.Allocator(), numImages, size, fmt, 0)
}

// NewImage allocates a single image.
func NewImage(ctx *core.Context, size Size2D, fmt Format) (*Image, error) {
	return tensor.NewImage(ctx.Table(), ctx.Allocator(), size, fmt, 0)
}

// NewImageBatch creates an empty variable-shape batch with the given
// capacity. Images pushed into it are retained until the batch is
// destroyed.
func NewImageBatch(ctx *core.Context, capacity int) (*ImageBatchVarShape, error) {
	return tensor.NewImageBatchVarShape(ctx.Table(), capacity)
}
