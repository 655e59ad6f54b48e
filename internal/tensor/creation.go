package tensor

import (
	"math"
	"math/rand"
)

// Full creates a tensor with every element set to value.
func Full(shape Shape, dtype DataType, value float64) (*Tensor, error) {
	t, err := New(shape, dtype)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.AsFloat32()
		v := float32(value)
		for i := range data {
			data[i] = v
		}
	case Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = value
		}
	}
	return t, nil
}

// Randn creates a tensor with values drawn from a standard normal
// distribution using the Box-Muller transform. The caller supplies the
// random source so that probe sequences replay deterministically.
func Randn(shape Shape, dtype DataType, rng *rand.Rand) (*Tensor, error) {
	t, err := New(shape, dtype)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case Float32:
		data := t.AsFloat32()
		for i := 0; i < len(data); i += 2 {
			u1 := rng.Float64() //nolint:gosec // G404: math/rand intentionally, seeded for reproducibility
			u2 := rng.Float64() //nolint:gosec // G404: math/rand intentionally, seeded for reproducibility
			z0 := math.Sqrt(-2.0*math.Log(1-u1)) * math.Cos(2.0*math.Pi*u2)
			z1 := math.Sqrt(-2.0*math.Log(1-u1)) * math.Sin(2.0*math.Pi*u2)
			data[i] = float32(z0)
			if i+1 < len(data) {
				data[i+1] = float32(z1)
			}
		}
	case Float64:
		data := t.AsFloat64()
		for i := 0; i < len(data); i += 2 {
			u1 := rng.Float64() //nolint:gosec // G404: math/rand intentionally, seeded for reproducibility
			u2 := rng.Float64() //nolint:gosec // G404: math/rand intentionally, seeded for reproducibility
			z0 := math.Sqrt(-2.0*math.Log(1-u1)) * math.Cos(2.0*math.Pi*u2)
			z1 := math.Sqrt(-2.0*math.Log(1-u1)) * math.Sin(2.0*math.Pi*u2)
			data[i] = z0
			if i+1 < len(data) {
				data[i+1] = z1
			}
		}
	}
	return t, nil
}
