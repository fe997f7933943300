package tensor

import (
	"github.com/streamcv/streamcv/internal/status"
)

// DefaultAlign is the base alignment assumed by device copy engines and
// kernel indexing when the caller does not request one. Callers with
// stricter transfer-engine requirements pass their own alignment.
const DefaultAlign = 32

// Requirements describe the memory an object needs: total byte size and
// per-axis byte strides. Rows are padded so every row start is a multiple
// of the requested alignment.
type Requirements struct {
	TotalBytes int
	Strides    []int
	Alignment  int
}

// alignUp rounds n up to the next multiple of align. align must be a
// power of two.
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func validateAlign(align int) error {
	if align <= 0 || align&(align-1) != 0 {
		return status.InvalidArgumentf("alignment %d is not a positive power of two", align)
	}
	return nil
}

// CalcRequirements computes strides and total size for a tensor of the
// given shape and element type. Strides are row-major over the shape's
// axis order, outermost first; callers wanting a different storage order
// permute the shape first (Layout.Permute). The innermost row is padded to
// align bytes. Zero-sized extents yield zero total bytes.
func CalcRequirements(shape Shape, dtype DataType, align int) (Requirements, error) {
	if err := shape.Validate(); err != nil {
		return Requirements{}, err
	}
	if align == 0 {
		align = DefaultAlign
	}
	if err := validateAlign(align); err != nil {
		return Requirements{}, err
	}

	rank := len(shape)
	strides := make([]int, rank)
	strides[rank-1] = dtype.Size()

	if rank >= 2 {
		rowBytes := shape[rank-1] * dtype.Size()
		strides[rank-2] = alignUp(rowBytes, align)
		for i := rank - 3; i >= 0; i-- {
			strides[i] = strides[i+1] * shape[i+1]
		}
	}

	return Requirements{
		TotalBytes: strides[0] * shape[0],
		Strides:    strides,
		Alignment:  align,
	}, nil
}

// interleaved reports whether the layout stores channels packed inside
// each pixel, which moves the padded-row boundary out by one axis.
func interleaved(layout Layout) bool {
	return len(layout) >= 3 && layout[len(layout)-1] == 'C'
}

// calcInterleavedRequirements computes strides for channel-interleaved
// layouts: the trailing (..., W, C) pair stays packed and each row of
// W*C elements is padded to align bytes, the same rule image planes use.
func calcInterleavedRequirements(shape Shape, dtype DataType, align int) (Requirements, error) {
	if err := shape.Validate(); err != nil {
		return Requirements{}, err
	}
	if align == 0 {
		align = DefaultAlign
	}
	if err := validateAlign(align); err != nil {
		return Requirements{}, err
	}

	rank := len(shape)
	strides := make([]int, rank)
	strides[rank-1] = dtype.Size()
	strides[rank-2] = shape[rank-1] * dtype.Size()

	rowBytes := shape[rank-2] * strides[rank-2]
	if rank >= 3 {
		strides[rank-3] = alignUp(rowBytes, align)
		for i := rank - 4; i >= 0; i-- {
			strides[i] = strides[i+1] * shape[i+1]
		}
	}

	return Requirements{
		TotalBytes: strides[0] * shape[0],
		Strides:    strides,
		Alignment:  align,
	}, nil
}

// Descriptor is the immutable description of a tensor's rank, extents,
// named axes, byte strides, and alignment. It is computed once at object
// creation; resizing requires a new object.
type Descriptor struct {
	shape   Shape
	layout  Layout
	dtype   DataType
	strides []int
	align   int
	bytes   int
}

// NewDescriptor builds a descriptor from explicit shape, layout, and
// element type. The layout may be empty; if named, its rank must match
// the shape's. Channel-interleaved layouts (ending in C) keep the pixel
// block packed and pad at the row boundary instead, matching the image
// layout rules.
func NewDescriptor(shape Shape, layout Layout, dtype DataType, align int) (Descriptor, error) {
	if layout != LayoutNone && layout.Rank() != len(shape) {
		return Descriptor{}, status.InvalidArgumentf("layout %q rank %d does not match shape rank %d",
			layout, layout.Rank(), len(shape))
	}

	var reqs Requirements
	var err error
	if interleaved(layout) {
		reqs, err = calcInterleavedRequirements(shape, dtype, align)
	} else {
		reqs, err = CalcRequirements(shape, dtype, align)
	}
	if err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		shape:   shape.Clone(),
		layout:  layout,
		dtype:   dtype,
		strides: reqs.Strides,
		align:   reqs.Alignment,
		bytes:   reqs.TotalBytes,
	}, nil
}

// Rank returns the number of axes.
func (d Descriptor) Rank() int { return len(d.shape) }

// Shape returns the per-axis extents.
func (d Descriptor) Shape() Shape { return d.shape }

// Layout returns the named-axis layout, possibly empty.
func (d Descriptor) Layout() Layout { return d.layout }

// DType returns the element type.
func (d Descriptor) DType() DataType { return d.dtype }

// Strides returns the per-axis byte strides.
func (d Descriptor) Strides() []int { return d.strides }

// Alignment returns the base alignment requirement in bytes.
func (d Descriptor) Alignment() int { return d.align }

// TotalBytes returns the padded allocation size.
func (d Descriptor) TotalBytes() int { return d.bytes }

// Extent returns the extent of the named axis, or -1 when the layout does
// not name it.
func (d Descriptor) Extent(axis rune) int {
	i := d.layout.Find(axis)
	if i < 0 {
		return -1
	}
	return d.shape[i]
}
