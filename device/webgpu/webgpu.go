//go:build windows

// Copyright 2025 StreamCV Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU memory backend.
//
// WebGPU is a cross-platform graphics and compute API that works on:
//   - Windows (via Dawn/D3D12)
//   - macOS (via Dawn/Metal)
//   - Linux (via Dawn/Vulkan)
//
// Example:
//
//	import (
//	    "github.com/streamcv/streamcv/core"
//	    "github.com/streamcv/streamcv/device/webgpu"
//	)
//
//	func main() {
//	    dev, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer dev.Close()
//
//	    ctx := core.NewContext(core.WithAllocator(webgpu.NewAllocator(dev)))
//	    defer ctx.Close()
//	}
package webgpu

import (
	"github.com/streamcv/streamcv/core"
	internalwebgpu "github.com/streamcv/streamcv/internal/device/webgpu"
)

// Device owns the WebGPU instance/adapter/device chain.
type Device = internalwebgpu.Device

// Allocator hands out device buffers and moves data to and from them.
type Allocator = internalwebgpu.Allocator

// Compile-time check that Allocator satisfies the runtime's allocator
// contract.
var _ core.Allocator = (*Allocator)(nil)

// New opens the default high-performance adapter.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible
// GPU). Call Close when done to free the device.
func New() (*Device, error) {
	return internalwebgpu.New()
}

// NewAllocator creates an allocator on the device.
func NewAllocator(dev *Device) *Allocator {
	return internalwebgpu.NewAllocator(dev)
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It attempts to initialize a WebGPU adapter to verify that a
// compatible GPU and drivers are present. Useful for graceful fallback
// to the host allocator when no GPU is available:
//
//	if webgpu.IsAvailable() {
//	    dev, _ := webgpu.New()
//	    ctx = core.NewContext(core.WithAllocator(webgpu.NewAllocator(dev)))
//	} else {
//	    ctx = core.NewContext()
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
