package linalg

import "math"

// AllFinite reports whether every element is a finite number.
func AllFinite(data []float32) bool {
	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// AllZero reports whether every element is exactly zero.
func AllZero(data []float32) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}
	return true
}

// L2Norm returns the Euclidean norm, accumulated in float64.
func L2Norm(data []float32) float64 {
	sum := 0.0
	for _, v := range data {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// ClipNorm rescales data in place so its L2 norm does not exceed maxNorm,
// and reports whether rescaling happened. maxNorm <= 0 disables clipping.
func ClipNorm(data []float32, maxNorm float64) bool {
	if maxNorm <= 0 {
		return false
	}
	norm := L2Norm(data)
	if norm <= maxNorm || norm == 0 {
		return false
	}
	scale := float32(maxNorm / norm)
	for i := range data {
		data[i] *= scale
	}
	return true
}
