// Copyright 2025 StreamCV Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package core provides the public API for the runtime context: the
// handle table, the default stream and allocator every other package
// hangs off, and the error taxonomy shared across the module.
//
// Example:
//
//	ctx := core.NewContext()
//	defer ctx.Close()
//	st := ctx.CurrentStream()
package core

import (
	"github.com/streamcv/streamcv/internal/alloc"
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/handle"
	"github.com/streamcv/streamcv/internal/status"
)

// Context owns every runtime object: streams, tensors, operators and
// the allocator backing them. Close tears everything down in dependency
// order.
type Context = core.Context

// Option configures a Context at creation.
type Option = core.Option

// NewContext creates a runtime context with a default stream.
func NewContext(opts ...Option) *Context { return core.NewContext(opts...) }

// WithAllocator overrides the default host allocator.
func WithAllocator(a Allocator) Option { return core.WithAllocator(a) }

// Handle is an opaque reference to a runtime-owned object. It stays
// resolvable until the object's last strong reference is dropped.
type Handle = handle.Handle

// Kind discriminates what a handle refers to.
type Kind = handle.Kind

// Object kinds.
const (
	KindTensor     Kind = handle.KindTensor
	KindImage      Kind = handle.KindImage
	KindImageBatch Kind = handle.KindImageBatch
	KindOperator   Kind = handle.KindOperator
	KindAllocator  Kind = handle.KindAllocator
	KindStream     Kind = handle.KindStream
)

// Allocator hands out device memory blocks.
type Allocator = alloc.Allocator

// Buffer is a single device memory block.
type Buffer = alloc.Buffer

// Sentinel errors. Use errors.Is to classify failures from any call in
// the module.
var (
	ErrInvalidHandle       = status.ErrInvalidHandle
	ErrInvalidArgument     = status.ErrInvalidArgument
	ErrConflictingLockMode = status.ErrConflictingLockMode
	ErrOutOfMemory         = status.ErrOutOfMemory
	ErrDevice              = status.ErrDevice
)
