package tensor

import (
	"github.com/streamcv/streamcv/internal/status"
)

// MaxRank is the highest tensor rank the runtime supports.
const MaxRank = 8

// Shape represents the per-axis extents of a tensor, listed in the same
// order as its layout's axes.
type Shape []int

// NumElements returns the total number of elements. Any zero extent makes
// the shape empty.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks rank and extents. Zero-sized extents are permitted.
func (s Shape) Validate() error {
	if len(s) == 0 || len(s) > MaxRank {
		return status.InvalidArgumentf("shape rank %d outside 1..%d", len(s), MaxRank)
	}
	for i, dim := range s {
		if dim < 0 {
			return status.InvalidArgumentf("shape extent %d at axis %d is negative", dim, i)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Layout names a tensor's axes, one rune per axis, outermost first.
// The runes follow the usual convention: N batch, H height, W width,
// C channel.
type Layout string

// Common layouts.
const (
	LayoutNone Layout = ""
	LayoutNHWC Layout = "NHWC"
	LayoutNCHW Layout = "NCHW"
	LayoutHWC  Layout = "HWC"
	LayoutNW   Layout = "NW"
	LayoutNWC  Layout = "NWC"
)

// Rank returns the number of named axes.
func (l Layout) Rank() int { return len(l) }

// Find returns the index of the named axis, or -1.
func (l Layout) Find(axis rune) int {
	for i, r := range l {
		if r == axis {
			return i
		}
	}
	return -1
}

// Permutation returns, for each axis of dst, its index in l. Both layouts
// must name the same axis set.
func (l Layout) Permutation(dst Layout) ([]int, error) {
	if len(l) != len(dst) {
		return nil, status.InvalidArgumentf("layout %q and %q have different ranks", l, dst)
	}
	perm := make([]int, len(dst))
	for i, axis := range dst {
		j := l.Find(axis)
		if j < 0 {
			return nil, status.InvalidArgumentf("axis %q of layout %q missing from %q", axis, dst, l)
		}
		perm[i] = j
	}
	return perm, nil
}

// Permute reorders a shape given in layout l into the axis order of dst.
// This is the axis permutation applied before stride computation when an
// explicit storage layout differs from the caller's shape order.
func (l Layout) Permute(s Shape, dst Layout) (Shape, error) {
	perm, err := l.Permutation(dst)
	if err != nil {
		return nil, err
	}
	if len(s) != len(perm) {
		return nil, status.InvalidArgumentf("shape rank %d does not match layout %q", len(s), l)
	}
	out := make(Shape, len(s))
	for i, j := range perm {
		out[i] = s[j]
	}
	return out, nil
}
