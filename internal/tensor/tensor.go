package tensor

import (
	"github.com/streamcv/streamcv/internal/alloc"
	"github.com/streamcv/streamcv/internal/handle"
)

// Tensor is a device tensor: an immutable descriptor plus the backing
// device buffer, registered in the handle table. The shape is fixed at
// creation; resizing means creating a new tensor.
type Tensor struct {
	desc      Descriptor
	buf       *alloc.Buffer
	allocator alloc.Allocator
	table     *handle.Table
	h         handle.Handle
}

// NewTensor allocates a tensor with the given shape, layout, and element
// type and registers it in the table. The returned tensor owns one strong
// handle reference; Destroy releases it.
func NewTensor(table *handle.Table, allocator alloc.Allocator, shape Shape, layout Layout, dtype DataType, align int) (*Tensor, error) {
	desc, err := NewDescriptor(shape, layout, dtype, align)
	if err != nil {
		return nil, err
	}
	return newTensorFromDesc(table, allocator, desc)
}

// NewTensorForImages allocates the NHWC tensor equivalent of numImages
// same-sized images of the given format.
func NewTensorForImages(table *handle.Table, allocator alloc.Allocator, numImages int, size Size2D, fmt Format, align int) (*Tensor, error) {
	desc, err := DescriptorForImages(numImages, size, fmt, align)
	if err != nil {
		return nil, err
	}
	return newTensorFromDesc(table, allocator, desc)
}

func newTensorFromDesc(table *handle.Table, allocator alloc.Allocator, desc Descriptor) (*Tensor, error) {
	buf, err := allocator.Allocate(desc.TotalBytes(), desc.Alignment())
	if err != nil {
		return nil, err
	}

	t := &Tensor{
		desc:      desc,
		buf:       buf,
		allocator: allocator,
		table:     table,
	}
	t.h = table.Create(t)
	return t, nil
}

// Kind implements handle.Object.
func (t *Tensor) Kind() handle.Kind { return handle.KindTensor }

// Handle returns the tensor's handle.
func (t *Tensor) Handle() handle.Handle { return t.h }

// Desc returns the full descriptor.
func (t *Tensor) Desc() Descriptor { return t.desc }

// Shape returns the per-axis extents.
func (t *Tensor) Shape() Shape { return t.desc.Shape() }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return t.desc.Rank() }

// Layout returns the named-axis layout.
func (t *Tensor) Layout() Layout { return t.desc.Layout() }

// DType returns the element type.
func (t *Tensor) DType() DataType { return t.desc.DType() }

// Strides returns per-axis byte strides.
func (t *Tensor) Strides() []int { return t.desc.Strides() }

// ByteSize returns the padded allocation size.
func (t *Tensor) ByteSize() int { return t.desc.TotalBytes() }

// Buffer returns the backing device buffer.
func (t *Tensor) Buffer() *alloc.Buffer { return t.buf }

// Data returns the host backing bytes, or nil for device-only buffers.
// WARNING: direct access to underlying memory. Use with caution.
func (t *Tensor) Data() []byte { return t.buf.Bytes() }

// Destroy drops the caller's strong reference. The backing memory is
// freed once no other references and no pending device work remain.
// A second Destroy fails with status.ErrInvalidHandle.
func (t *Tensor) Destroy() error { return t.table.DecRef(t.h) }

// Finalize implements handle.Finalizer: returns the buffer to the
// allocator once the handle table decides the tensor is truly dead.
func (t *Tensor) Finalize() error {
	t.allocator.Free(t.buf)
	t.buf = nil
	return nil
}
