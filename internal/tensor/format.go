package tensor

import (
	"github.com/streamcv/streamcv/internal/status"
)

// Size2D is a width/height pair in pixels.
type Size2D struct {
	W, H int
}

// Max returns the element-wise maximum of the two sizes.
func (s Size2D) Max(other Size2D) Size2D {
	if other.W > s.W {
		s.W = other.W
	}
	if other.H > s.H {
		s.H = other.H
	}
	return s
}

// Plane describes one plane of a pixel format: interleaved channel count
// and chroma subsampling factors relative to the full image size.
type Plane struct {
	Channels   int
	SubsampleX int
	SubsampleY int
}

// Format is a minimal pixel-format descriptor: element type plus one or
// more planes. The full pixel-format catalog lives outside the runtime;
// this covers what the resource system needs for requirement calculation.
type Format struct {
	name   string
	dtype  DataType
	planes []Plane
}

// Built-in formats.
var (
	FormatU8    = Format{name: "U8", dtype: U8, planes: []Plane{{Channels: 1, SubsampleX: 1, SubsampleY: 1}}}
	FormatRGB8  = Format{name: "RGB8", dtype: U8, planes: []Plane{{Channels: 3, SubsampleX: 1, SubsampleY: 1}}}
	FormatRGBA8 = Format{name: "RGBA8", dtype: U8, planes: []Plane{{Channels: 4, SubsampleX: 1, SubsampleY: 1}}}
	FormatF32   = Format{name: "F32", dtype: F32, planes: []Plane{{Channels: 1, SubsampleX: 1, SubsampleY: 1}}}
	FormatNV12  = Format{name: "NV12", dtype: U8, planes: []Plane{
		{Channels: 1, SubsampleX: 1, SubsampleY: 1},
		{Channels: 2, SubsampleX: 2, SubsampleY: 2},
	}}
)

// String returns the format name.
func (f Format) String() string { return f.name }

// Equal reports whether two formats describe the same pixel layout.
// Format values carry a plane slice and cannot be compared with ==;
// names identify formats uniquely.
func (f Format) Equal(other Format) bool { return f.name == other.name }

// DType returns the element type shared by all planes.
func (f Format) DType() DataType { return f.dtype }

// NumPlanes returns the plane count.
func (f Format) NumPlanes() int { return len(f.planes) }

// NumChannels returns the total channel count across planes.
func (f Format) NumChannels() int {
	n := 0
	for _, p := range f.planes {
		n += p.Channels
	}
	return n
}

// Valid reports whether the format describes at least one plane.
func (f Format) Valid() bool { return len(f.planes) > 0 }

// FormatForChannels returns the built-in single-plane format matching
// an element type and interleaved channel count.
func FormatForChannels(dtype DataType, channels int) (Format, error) {
	for _, f := range []Format{FormatU8, FormatRGB8, FormatRGBA8, FormatF32} {
		if f.dtype == dtype && f.NumChannels() == channels {
			return f, nil
		}
	}
	return Format{}, status.InvalidArgumentf("no pixel format for %d interleaved %s channels", channels, dtype)
}

// PlaneRequirements describe one plane's memory layout within an image.
type PlaneRequirements struct {
	RowStride int // bytes per padded row
	Rows      int
	Bytes     int // RowStride * Rows
	Offset    int // byte offset from the image base
}

// ImageRequirements describe the memory layout for a batch of same-sized
// images: per-plane layouts, the padded per-image stride, and the total
// allocation size.
type ImageRequirements struct {
	Size        Size2D
	Format      Format
	Planes      []PlaneRequirements
	ImageStride int
	NumImages   int
	TotalBytes  int
	Alignment   int
}

// CalcImageRequirements computes requirements for numImages images of the
// given size and format. Planes are computed individually and laid out
// contiguously; every row start and every plane start is a multiple of
// align. Zero-sized images yield zero total bytes.
func CalcImageRequirements(numImages int, size Size2D, fmt Format, align int) (ImageRequirements, error) {
	if numImages < 0 {
		return ImageRequirements{}, status.InvalidArgumentf("negative image count %d", numImages)
	}
	if size.W < 0 || size.H < 0 {
		return ImageRequirements{}, status.InvalidArgumentf("negative image size %dx%d", size.W, size.H)
	}
	if !fmt.Valid() {
		return ImageRequirements{}, status.InvalidArgumentf("empty pixel format")
	}
	if align == 0 {
		align = DefaultAlign
	}
	if err := validateAlign(align); err != nil {
		return ImageRequirements{}, err
	}

	planes := make([]PlaneRequirements, len(fmt.planes))
	offset := 0
	for i, p := range fmt.planes {
		rowBytes := (size.W / p.SubsampleX) * p.Channels * fmt.dtype.Size()
		rows := size.H / p.SubsampleY
		rowStride := alignUp(rowBytes, align)
		planes[i] = PlaneRequirements{
			RowStride: rowStride,
			Rows:      rows,
			Bytes:     rowStride * rows,
			Offset:    offset,
		}
		offset = alignUp(offset+planes[i].Bytes, align)
	}

	return ImageRequirements{
		Size:        size,
		Format:      fmt,
		Planes:      planes,
		ImageStride: offset,
		NumImages:   numImages,
		TotalBytes:  offset * numImages,
		Alignment:   align,
	}, nil
}

// DescriptorForImages builds the NHWC tensor descriptor equivalent to a
// batch of numImages same-sized images. Only single-plane formats have a
// tensor equivalent; multi-plane formats fail with ErrInvalidArgument.
func DescriptorForImages(numImages int, size Size2D, fmt Format, align int) (Descriptor, error) {
	reqs, err := CalcImageRequirements(numImages, size, fmt, align)
	if err != nil {
		return Descriptor{}, err
	}
	if fmt.NumPlanes() != 1 {
		return Descriptor{}, status.InvalidArgumentf("format %s has %d planes, tensor view needs 1",
			fmt, fmt.NumPlanes())
	}

	ch := fmt.planes[0].Channels
	shape := Shape{numImages, size.H, size.W, ch}
	if err := shape.Validate(); err != nil {
		return Descriptor{}, err
	}

	// Strides reuse the image layout so the tensor view matches the padded
	// image rows exactly.
	dsize := fmt.dtype.Size()
	return Descriptor{
		shape:  shape,
		layout: LayoutNHWC,
		dtype:  fmt.dtype,
		strides: []int{
			reqs.ImageStride,
			reqs.Planes[0].RowStride,
			ch * dsize,
			dsize,
		},
		align: reqs.Alignment,
		bytes: reqs.TotalBytes,
	}, nil
}
