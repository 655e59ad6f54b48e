package tensor

import "fmt"

// DataType is the runtime element type of a tensor.
type DataType int

// Supported element types. Parameters, gradients and momentum statistics are
// Float32; curvature factors are Float64.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the size of one element in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic(fmt.Sprintf("unknown dtype: %d", int(dt)))
	}
}

// String returns a human-readable type name.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

