// Copyright 2025 Ballast ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the dense tensors ballast
// optimizers operate on.
//
// The package defines:
//   - Tensor: a dense n-dimensional array over a flat row-major buffer
//   - Shape, DataType: core type definitions
//   - Constructors: New, FromFloat32, FromFloat64, Full, Randn
//
// Parameters, gradients and momentum statistics are Float32; curvature
// factors and step counters serialize as Float64.
//
// # Basic Usage
//
//	import "github.com/ballast-ml/ballast/tensor"
//
//	weight, err := tensor.Randn(tensor.Shape{128, 64}, tensor.Float32, rng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	grad, err := tensor.New(tensor.Shape{128, 64}, tensor.Float32)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	copy(grad.AsFloat32(), batchGradient)
package tensor
