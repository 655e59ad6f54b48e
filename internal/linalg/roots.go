// Package linalg provides the dense linear-algebra kernels used by the
// preconditioners: symmetric inverse roots, eigenbases, Newton-Schulz
// orthogonalization and Kronecker-factored tensor contractions.
package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// InverseRoot computes (m + eps*I)^(-1/p) for a symmetric PSD matrix via
// eigendecomposition. If the factorization fails or the damped spectrum
// still contains a non-positive eigenvalue, a scaled identity is returned
// instead so that no NaN ever reaches the update path.
func InverseRoot(m *mat.SymDense, p int, eps float64) (*mat.SymDense, error) {
	if p <= 0 {
		return nil, fmt.Errorf("root order must be positive, got %d", p)
	}
	if eps <= 0 {
		return nil, fmt.Errorf("damping epsilon must be positive, got %g", eps)
	}

	n := m.SymmetricDim()
	damped := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := m.At(i, j)
			if i == j {
				v += eps
			}
			damped.SetSym(i, j, v)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(damped, true); !ok {
		return identityFallback(m, p, eps), nil
	}

	vals := es.Values(nil)
	if vals[0] <= 0 || math.IsNaN(vals[0]) {
		return identityFallback(m, p, eps), nil
	}

	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// V * diag(vals^(-1/p)) * V^T
	exp := -1.0 / float64(p)
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		s := math.Pow(vals[j], exp)
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vecs.At(i, j)*s)
		}
	}
	var full mat.Dense
	full.Mul(scaled, vecs.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out, nil
}

// identityFallback returns t*I with t chosen from the matrix scale, so a
// degenerate factor still yields a finite, sensibly sized preconditioner.
func identityFallback(m *mat.SymDense, p int, eps float64) *mat.SymDense {
	n := m.SymmetricDim()
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += m.At(i, i)
	}
	scale := trace/float64(n) + eps
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = eps
	}
	v := math.Pow(scale, -1.0/float64(p))

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}

// EigenBasis returns the orthonormal eigenvectors of m as columns, in
// ascending eigenvalue order. ok is false when the factorization fails, in
// which case the identity basis is returned.
func EigenBasis(m *mat.SymDense) (*mat.Dense, bool) {
	n := m.SymmetricDim()

	var es mat.EigenSym
	if ok := es.Factorize(m, true); !ok {
		return Identity(n), false
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := vecs.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return Identity(n), false
			}
		}
	}
	return &vecs, true
}

// Identity returns the n x n identity matrix.
func Identity(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}
