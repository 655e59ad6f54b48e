// Copyright 2025 Ballast ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// Tensor is a dense n-dimensional array backed by a flat byte buffer in
// row-major order.
type Tensor = tensor.Tensor

// Shape describes the extent of each tensor dimension.
type Shape = tensor.Shape

// DataType is the runtime element type of a tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// New creates a zero-initialized tensor with the given shape and type.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.New(shape, dtype)
}

// FromFloat32 creates a Float32 tensor holding a copy of values.
//
// Example:
//
//	bias, err := tensor.FromFloat32(tensor.Shape{4}, []float32{0, 0, 0, 0})
func FromFloat32(shape Shape, values []float32) (*Tensor, error) {
	return tensor.FromFloat32(shape, values)
}

// FromFloat64 creates a Float64 tensor holding a copy of values.
func FromFloat64(shape Shape, values []float64) (*Tensor, error) {
	return tensor.FromFloat64(shape, values)
}

// Full creates a tensor with every element set to value.
func Full(shape Shape, dtype DataType, value float64) (*Tensor, error) {
	return tensor.Full(shape, dtype, value)
}

// Randn creates a tensor with values drawn from a standard normal
// distribution. The caller supplies the random source, so initialization is
// reproducible under a fixed seed.
func Randn(shape Shape, dtype DataType, rng *rand.Rand) (*Tensor, error) {
	return tensor.Randn(shape, dtype, rng)
}
