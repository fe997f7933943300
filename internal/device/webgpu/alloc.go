//go:build windows

package webgpu

import (
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/streamcv/streamcv/internal/alloc"
	"github.com/streamcv/streamcv/internal/status"
)

// Allocator hands out storage buffers on the device. Allocate/Free are
// safe for concurrent use; the device serializes buffer creation.
type Allocator struct {
	dev *Device
}

// NewAllocator creates an allocator on the device.
func NewAllocator(dev *Device) *Allocator {
	return &Allocator{dev: dev}
}

var _ alloc.Allocator = (*Allocator)(nil)

// Allocate implements alloc.Allocator. The buffer is usable as a kernel
// operand and as either end of a transfer.
func (a *Allocator) Allocate(size, align int) (*alloc.Buffer, error) {
	if size < 0 {
		return nil, status.InvalidArgumentf("negative allocation size %d", size)
	}
	buffer := a.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(size),
	})
	if buffer == nil {
		return nil, status.OutOfMemoryf("webgpu: buffer allocation of %d bytes failed", size)
	}
	return alloc.NewDeviceBuffer(unsafe.Pointer(buffer), size, align), nil
}

// Free implements alloc.Allocator.
func (a *Allocator) Free(b *alloc.Buffer) {
	if b == nil || b.DevicePtr() == nil {
		return
	}
	(*wgpu.Buffer)(b.DevicePtr()).Release()
}

// Upload copies host bytes into a device buffer through a mapped
// staging buffer.
func (a *Allocator) Upload(dst *alloc.Buffer, data []byte) error {
	if dst.DevicePtr() == nil {
		return status.InvalidArgumentf("upload target is not a device buffer")
	}
	if len(data) > dst.Size() {
		return status.InvalidArgumentf("upload of %d bytes into %d-byte buffer", len(data), dst.Size())
	}
	size := uint64(len(data))
	staging := a.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	staging.Unmap()

	encoder := a.dev.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, (*wgpu.Buffer)(dst.DevicePtr()), 0, size)
	cmdBuffer := encoder.Finish(nil)
	a.dev.queue.Submit(cmdBuffer)
	return nil
}

// Download reads a device buffer back to host memory. Storage buffers
// cannot be mapped directly, so the copy goes through a staging buffer.
func (a *Allocator) Download(src *alloc.Buffer) ([]byte, error) {
	if src.DevicePtr() == nil {
		return nil, status.InvalidArgumentf("download source is not a device buffer")
	}
	size := uint64(src.Size())
	staging := a.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := a.dev.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer((*wgpu.Buffer)(src.DevicePtr()), 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	a.dev.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(a.dev.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, status.Devicef("webgpu: failed to map staging buffer: %v", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()
	return result, nil
}
