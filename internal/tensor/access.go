package tensor

import (
	"fmt"
	"unsafe"
)

// AsFloat32 interprets the host backing as []float32.
// Panics if the tensor's dtype is not F32 or the buffer is device-only.
func (t *Tensor) AsFloat32() []float32 {
	if t.desc.dtype != F32 {
		panic(fmt.Sprintf("tensor dtype is %s, not f32", t.desc.dtype))
	}
	data := t.hostData()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by ByteSize
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// AsInt32 interprets the host backing as []int32.
// Panics if the tensor's dtype is not S32 or the buffer is device-only.
func (t *Tensor) AsInt32() []int32 {
	if t.desc.dtype != S32 {
		panic(fmt.Sprintf("tensor dtype is %s, not s32", t.desc.dtype))
	}
	data := t.hostData()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by ByteSize
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// AsUint8 interprets the host backing as []uint8.
// Panics if the tensor's dtype is not U8.
func (t *Tensor) AsUint8() []uint8 {
	if t.desc.dtype != U8 {
		panic(fmt.Sprintf("tensor dtype is %s, not u8", t.desc.dtype))
	}
	return t.hostData()
}

func (t *Tensor) hostData() []byte {
	data := t.buf.Bytes()
	if data == nil {
		panic("tensor buffer is device-only")
	}
	return data
}
