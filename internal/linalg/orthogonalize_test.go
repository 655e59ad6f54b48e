package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// The quintic iteration settles into a band around one, not onto one
// exactly; 0.4 is the honest width of that band after five steps.
const singularBand = 0.4

func singularValues(t *testing.T, m *mat.Dense) []float64 {
	t.Helper()
	var svd mat.SVD
	require.True(t, svd.Factorize(m, mat.SVDNone))
	return svd.Values(nil)
}

func TestNewtonSchulzSingularValuesInBand(t *testing.T) {
	g := mat.NewDense(3, 4, []float64{
		0.8, -0.3, 0.5, 1.2,
		-0.7, 1.1, 0.2, -0.4,
		0.3, 0.6, -1.5, 0.9,
	})

	o := NewtonSchulz(g, 5)

	r, c := o.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)

	for i, sv := range singularValues(t, o) {
		assert.InDelta(t, 1.0, sv, singularBand, "singular value %d", i)
	}
}

func TestNewtonSchulzTallInput(t *testing.T) {
	g := mat.NewDense(5, 2, []float64{
		1.0, 0.2,
		-0.5, 0.9,
		0.3, -1.1,
		0.8, 0.4,
		-0.2, 0.7,
	})

	o := NewtonSchulz(g, 5)

	r, c := o.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)

	for i, sv := range singularValues(t, o) {
		assert.InDelta(t, 1.0, sv, singularBand, "singular value %d", i)
	}
}

func TestNewtonSchulzRankOne(t *testing.T) {
	// outer(u, v) has exactly one nonzero singular value; orthogonalization
	// must push it toward one and leave the null space alone.
	u := []float64{1, 2, 3, 4}
	v := []float64{1, -1, 2}
	g := mat.NewDense(4, 3, nil)
	for i := range u {
		for j := range v {
			g.Set(i, j, u[i]*v[j])
		}
	}

	o := NewtonSchulz(g, 5)

	sv := singularValues(t, o)
	assert.InDelta(t, 1.0, sv[0], singularBand)
	assert.Less(t, sv[1], 1e-6)
	assert.Less(t, sv[2], 1e-6)
}

func TestNewtonSchulzRepeatedApplication(t *testing.T) {
	g := mat.NewDense(3, 3, []float64{
		2.0, -1.0, 0.5,
		0.3, 1.5, -0.8,
		-0.6, 0.2, 1.1,
	})

	once := NewtonSchulz(g, 5)
	twice := NewtonSchulz(once, 5)

	for i, sv := range singularValues(t, twice) {
		assert.InDelta(t, 1.0, sv, singularBand, "singular value %d", i)
	}

	// A second application keeps the same singular vectors, so
	// once * twice^T is symmetric.
	var cross mat.Dense
	cross.Mul(once, twice.T())
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			assert.InDelta(t, cross.At(i, j), cross.At(j, i), 1e-5, "entry (%d,%d)", i, j)
		}
	}
}

func TestNewtonSchulzZeroInput(t *testing.T) {
	g := mat.NewDense(2, 3, nil)

	o := NewtonSchulz(g, 5)

	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, 0.0, o.At(i, j))
		}
	}
}

func TestNewtonSchulzDeterministic(t *testing.T) {
	g := mat.NewDense(2, 2, []float64{1.3, -0.2, 0.7, 0.4})

	a := NewtonSchulz(g, 5)
	b := NewtonSchulz(g, 5)

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.Equal(t, a.At(i, j), b.At(i, j))
		}
	}
}

func TestNewtonSchulzDoesNotMutateInput(t *testing.T) {
	g := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_ = NewtonSchulz(g, 5)

	assert.Equal(t, 1.0, g.At(0, 0))
	assert.Equal(t, 4.0, g.At(1, 1))
}
