package tensor

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/status"
)

// ImageBatchVarShape is a collection of same-format but differently sized
// images processed as one logical operator call. The batch holds a strong
// reference to every image pushed into it, so images cannot disappear
// while the batch is alive. Capacity is fixed at creation.
type ImageBatchVarShape struct {
	table    *handle.Table
	h        handle.Handle
	capacity int

	mu     sync.Mutex
	images []*Image
}

// NewImageBatchVarShape creates an empty batch with the given capacity.
func NewImageBatchVarShape(table *handle.Table, capacity int) (*ImageBatchVarShape, error) {
	if capacity <= 0 {
		return nil, status.InvalidArgumentf("batch capacity %d", capacity)
	}

	b := &ImageBatchVarShape{
		table:    table,
		capacity: capacity,
		images:   make([]*Image, 0, capacity),
	}
	b.h = table.Create(b)
	return b, nil
}

// Kind implements handle.Object.
func (b *ImageBatchVarShape) Kind() handle.Kind { return handle.KindImageBatch }

// Handle returns the batch's handle.
func (b *ImageBatchVarShape) Handle() handle.Handle { return b.h }

// Capacity returns the maximum image count.
func (b *ImageBatchVarShape) Capacity() int { return b.capacity }

// NumImages returns the current image count.
func (b *ImageBatchVarShape) NumImages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images)
}

// PushBack appends an image, taking a strong reference on its handle.
// All images in a batch must share one format.
func (b *ImageBatchVarShape) PushBack(img *Image) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.images) >= b.capacity {
		return status.InvalidArgumentf("batch full: capacity %d", b.capacity)
	}
	if len(b.images) > 0 && !b.images[0].Format().Equal(img.Format()) {
		return status.InvalidArgumentf("batch format %s, image format %s",
			b.images[0].Format(), img.Format())
	}

	if err := b.table.IncRef(img.Handle()); err != nil {
		return err
	}
	b.images = append(b.images, img)
	return nil
}

// At returns the i-th image.
func (b *ImageBatchVarShape) At(i int) *Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.images[i]
}

// UniqueFormat returns the format shared by all images, or the zero
// Format for an empty batch.
func (b *ImageBatchVarShape) UniqueFormat() Format {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.images) == 0 {
		return Format{}
	}
	return b.images[0].Format()
}

// MaxSize returns the element-wise maximum extents over all images. This
// is the single worst-case working size operators use to size shared
// workspaces.
func (b *ImageBatchVarShape) MaxSize() Size2D {
	b.mu.Lock()
	defer b.mu.Unlock()

	var max Size2D
	for _, img := range b.images {
		max = max.Max(img.Size())
	}
	return max
}

// Destroy drops the caller's strong reference on the batch.
func (b *ImageBatchVarShape) Destroy() error { return b.table.DecRef(b.h) }

// Finalize implements handle.Finalizer: releases the batch's references
// on its images.
func (b *ImageBatchVarShape) Finalize() error {
	b.mu.Lock()
	images := b.images
	b.images = nil
	b.mu.Unlock()

	var err error
	for _, img := range images {
		err = multierr.Append(err, b.table.DecRef(img.Handle()))
	}
	return err
}
