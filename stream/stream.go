// Copyright 2025 StreamCV Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package stream provides the public API for device work queues.
//
// A stream executes enqueued work in submission order; ordering across
// streams is unspecified unless the caller synchronizes explicitly.
// Submissions never block on device completion: lifetimes of the
// objects they touch are resolved through completion markers.
//
// Example:
//
//	ctx := core.NewContext()
//	defer ctx.Close()
//	st := ctx.NewStream("preprocess")
//	// ... submit work ...
//	if err := st.Sync(); err != nil {
//		// a device fault surfaced on this stream
//	}
package stream

import (
	"github.com/streamcv/streamcv/internal/core"
	"github.com/streamcv/streamcv/internal/stream"
)

// Stream is an ordered device work queue.
type Stream = stream.Stream

// Marker is a stream position; it fires once all work enqueued before
// it has completed.
type Marker = stream.Marker

// Default returns the context's current stream.
func Default(ctx *core.Context) *Stream { return ctx.CurrentStream() }
