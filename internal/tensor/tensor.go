package tensor

import (
	"fmt"
	"unsafe"
)

// Tensor is a dense n-dimensional array backed by a flat byte buffer in
// row-major order. Optimizer state tensors are exclusively owned by their
// parameter's state machine, so buffers are never shared or viewed.
type Tensor struct {
	data  []byte
	shape Shape
	dtype DataType
}

// New creates a zero-initialized tensor with the given shape and type.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()

	return &Tensor{
		data:  make([]byte, byteSize),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromFloat32 creates a Float32 tensor holding a copy of values.
func FromFloat32(shape Shape, values []float32) (*Tensor, error) {
	t, err := New(shape, Float32)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, fmt.Errorf("shape %s needs %d values, got %d", shape, t.NumElements(), len(values))
	}
	copy(t.AsFloat32(), values)
	return t, nil
}

// FromFloat64 creates a Float64 tensor holding a copy of values.
func FromFloat64(shape Shape, values []float64) (*Tensor, error) {
	t, err := New(shape, Float64)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, fmt.Errorf("shape %s needs %d values, got %d", shape, t.NumElements(), len(values))
	}
	copy(t.AsFloat64(), values)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the tensor's row-major memory strides.
func (t *Tensor) Strides() []int {
	return t.shape.ComputeStrides()
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (t *Tensor) ByteSize() int {
	return len(t.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (t *Tensor) Data() []byte {
	return t.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *Tensor) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (t *Tensor) AsFloat64() []float64 {
	if t.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Clone returns a deep copy with an independent buffer.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		data:  make([]byte, len(t.data)),
		shape: t.shape.Clone(),
		dtype: t.dtype,
	}
	copy(out.data, t.data)
	return out
}

// Zero resets every element to zero in place.
func (t *Tensor) Zero() {
	clear(t.data)
}
