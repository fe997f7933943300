package tensor

import (
	"github.com/streamcv/streamcv/internal/alloc"
	"github.com/streamcv/streamcv/internal/handle"
)

// Image is a single device image: per-plane padded layout plus the
// backing buffer, registered in the handle table.
type Image struct {
	reqs      ImageRequirements
	buf       *alloc.Buffer
	allocator alloc.Allocator
	table     *handle.Table
	h         handle.Handle
}

// NewImage allocates an image of the given size and format.
func NewImage(table *handle.Table, allocator alloc.Allocator, size Size2D, fmt Format, align int) (*Image, error) {
	reqs, err := CalcImageRequirements(1, size, fmt, align)
	if err != nil {
		return nil, err
	}

	buf, err := allocator.Allocate(reqs.TotalBytes, reqs.Alignment)
	if err != nil {
		return nil, err
	}

	img := &Image{
		reqs:      reqs,
		buf:       buf,
		allocator: allocator,
		table:     table,
	}
	img.h = table.Create(img)
	return img, nil
}

// Kind implements handle.Object.
func (img *Image) Kind() handle.Kind { return handle.KindImage }

// Handle returns the image's handle.
func (img *Image) Handle() handle.Handle { return img.h }

// Size returns the pixel size.
func (img *Image) Size() Size2D { return img.reqs.Size }

// Width returns the pixel width.
func (img *Image) Width() int { return img.reqs.Size.W }

// Height returns the pixel height.
func (img *Image) Height() int { return img.reqs.Size.H }

// Format returns the pixel format.
func (img *Image) Format() Format { return img.reqs.Format }

// Requirements returns the computed plane layout.
func (img *Image) Requirements() ImageRequirements { return img.reqs }

// ByteSize returns the padded allocation size.
func (img *Image) ByteSize() int { return img.reqs.TotalBytes }

// Buffer returns the backing device buffer.
func (img *Image) Buffer() *alloc.Buffer { return img.buf }

// Data returns the host backing bytes, or nil for device-only buffers.
func (img *Image) Data() []byte { return img.buf.Bytes() }

// Destroy drops the caller's strong reference.
func (img *Image) Destroy() error { return img.table.DecRef(img.h) }

// Finalize implements handle.Finalizer.
func (img *Image) Finalize() error {
	img.allocator.Free(img.buf)
	img.buf = nil
	return nil
}
