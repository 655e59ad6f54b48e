package linalg

import "gonum.org/v1/gonum/mat"

// Quintic iteration coefficients. They drive every singular value into a
// fixed band around one rather than exactly to one.
const (
	nsAlpha = 3.4445
	nsBeta  = -4.7750
	nsGamma = 2.0315
)

// nsNormEps keeps the Frobenius pre-normalization finite on zero input.
const nsNormEps = 1e-7

// NewtonSchulz approximately orthogonalizes g: the result has the same
// singular vectors with all singular values pushed into a narrow band
// around one. The input is normalized by its Frobenius norm first, which
// keeps every iterate bounded regardless of the gradient scale. The
// computation is deterministic: no randomness, no data-dependent branching.
//
// Tall inputs are transposed internally so the Gram matrix is always built
// on the short side; the result is returned in the original orientation.
func NewtonSchulz(g *mat.Dense, steps int) *mat.Dense {
	rows, cols := g.Dims()

	x := mat.DenseCopyOf(g)
	transposed := false
	if rows > cols {
		xt := mat.DenseCopyOf(x.T())
		x = xt
		transposed = true
	}

	norm := mat.Norm(x, 2)
	x.Scale(1/(norm+nsNormEps), x)

	var gram, gram2, poly, polyX mat.Dense
	for i := 0; i < steps; i++ {
		gram.Mul(x, x.T())
		gram2.Mul(&gram, &gram)
		poly.Scale(nsBeta, &gram)
		gram2.Scale(nsGamma, &gram2)
		poly.Add(&poly, &gram2)
		polyX.Mul(&poly, x)
		x.Scale(nsAlpha, x)
		x.Add(x, &polyX)
	}

	if transposed {
		return mat.DenseCopyOf(x.T())
	}
	return x
}
