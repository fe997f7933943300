// Copyright 2025 StreamCV Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamcv/streamcv/core"
	"github.com/streamcv/streamcv/ops"
	"github.com/streamcv/streamcv/tensor"
)

func newContext(t *testing.T) *core.Context {
	t.Helper()
	ctx := core.NewContext()
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func TestResizeEndToEnd(t *testing.T) {
	ctx := newContext(t)

	src, err := tensor.New(ctx, tensor.Shape{1, 2, 2, 1}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = src.Destroy() }()
	dst, err := tensor.New(ctx, tensor.Shape{1, 4, 4, 1}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = dst.Destroy() }()

	for i := range src.AsUint8() {
		src.AsUint8()[i] = 7
	}

	require.NoError(t, ops.Resize(ctx, nil, dst, src, ops.InterpNearest))
	require.NoError(t, ctx.CurrentStream().Sync())

	st := dst.Strides()
	assert.Equal(t, uint8(7), dst.AsUint8()[0])
	assert.Equal(t, uint8(7), dst.AsUint8()[3*st[1]+3*st[2]])
}

func TestResizeCachesOperatorPerConfiguration(t *testing.T) {
	ctx := newContext(t)

	src, err := tensor.New(ctx, tensor.Shape{1, 2, 2, 1}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = src.Destroy() }()
	dst, err := tensor.New(ctx, tensor.Shape{1, 4, 4, 1}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = dst.Destroy() }()

	require.NoError(t, ops.Resize(ctx, nil, dst, src, ops.InterpNearest))
	require.NoError(t, ops.Resize(ctx, nil, dst, src, ops.InterpLinear))
	assert.Equal(t, 1, ctx.Operators().Len(), "same configuration must reuse one operator")

	big, err := tensor.New(ctx, tensor.Shape{1, 8, 8, 1}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = big.Destroy() }()
	require.NoError(t, ops.Resize(ctx, nil, big, src, ops.InterpNearest))
	assert.Equal(t, 2, ctx.Operators().Len(), "new worst-case extents need a new operator")

	require.NoError(t, ctx.CurrentStream().Sync())
}

func TestNMSEndToEnd(t *testing.T) {
	ctx := newContext(t)

	src, err := tensor.New(ctx, tensor.Shape{1, 2, 4}, "", tensor.F32)
	require.NoError(t, err)
	defer func() { _ = src.Destroy() }()
	scores, err := tensor.New(ctx, tensor.Shape{1, 2}, "", tensor.F32)
	require.NoError(t, err)
	defer func() { _ = scores.Destroy() }()
	dst, err := tensor.New(ctx, tensor.Shape{1, 2}, "", tensor.U8)
	require.NoError(t, err)
	defer func() { _ = dst.Destroy() }()

	// Two identical boxes: only the higher-scored one survives.
	bs := src.Strides()
	boxes := src.AsFloat32()
	for i := 0; i < 2; i++ {
		base := i * bs[1] / 4
		boxes[base], boxes[base+1], boxes[base+2], boxes[base+3] = 0, 0, 10, 10
	}
	ss := scores.Strides()
	scores.AsFloat32()[0] = 0.9
	scores.AsFloat32()[ss[1]/4] = 0.8

	require.NoError(t, ops.NMS(ctx, nil, dst, src, scores, 0.1, 0.5))
	require.NoError(t, ctx.CurrentStream().Sync())

	ms := dst.Strides()
	assert.Equal(t, uint8(1), dst.AsUint8()[0])
	assert.Equal(t, uint8(0), dst.AsUint8()[ms[1]])
}

func TestNMSRejectsRankMismatch(t *testing.T) {
	ctx := newContext(t)

	src, err := tensor.New(ctx, tensor.Shape{2, 8, 4}, "", tensor.F32)
	require.NoError(t, err)
	defer func() { _ = src.Destroy() }()
	scores, err := tensor.New(ctx, tensor.Shape{2}, "", tensor.F32)
	require.NoError(t, err)
	defer func() { _ = scores.Destroy() }()
	dst, err := tensor.New(ctx, tensor.Shape{2, 8}, "", tensor.U8)
	require.NoError(t, err)
	defer func() { _ = dst.Destroy() }()

	err = ops.NMS(ctx, nil, dst, src, scores, 0.1, 0.5)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestCopyEndToEnd(t *testing.T) {
	ctx := newContext(t)

	src, err := tensor.New(ctx, tensor.Shape{4, 4}, "", tensor.S32)
	require.NoError(t, err)
	defer func() { _ = src.Destroy() }()
	dst, err := tensor.New(ctx, tensor.Shape{4, 4}, "", tensor.S32)
	require.NoError(t, err)
	defer func() { _ = dst.Destroy() }()

	for i := range src.AsInt32() {
		src.AsInt32()[i] = int32(i * 3)
	}

	require.NoError(t, ops.Copy(ctx, nil, dst, src))
	require.NoError(t, ctx.CurrentStream().Sync())
	assert.Equal(t, src.AsInt32(), dst.AsInt32())
}

func TestResizeOnSecondaryStream(t *testing.T) {
	ctx := newContext(t)
	st := ctx.NewStream("secondary")

	src, err := tensor.New(ctx, tensor.Shape{1, 2, 2, 3}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = src.Destroy() }()
	dst, err := tensor.New(ctx, tensor.Shape{1, 2, 2, 3}, tensor.NHWC, tensor.U8)
	require.NoError(t, err)
	defer func() { _ = dst.Destroy() }()

	require.NoError(t, ops.Resize(ctx, st, dst, src, ops.InterpNearest))
	require.NoError(t, st.Sync())
}
