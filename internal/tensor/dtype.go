// Package tensor provides shape/layout descriptors and the host-owned data
// objects (tensors, images, variable-shape image batches) tracked by the
// runtime's handle table.
package tensor

// DataType represents runtime element type information.
type DataType int

// Supported element types.
const (
	U8 DataType = iota
	U16
	S16
	S32
	F32
	F64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case U8:
		return 1
	case U16, S16:
		return 2
	case S32, F32:
		return 4
	case F64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case S16:
		return "s16"
	case S32:
		return "s32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}
