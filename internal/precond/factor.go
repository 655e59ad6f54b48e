// Package precond implements the per-parameter preconditioner state and the
// algorithm engines that turn raw gradients into update directions.
package precond

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Factor is one axis of a Kronecker-factored curvature estimate: a full
// symmetric PSD matrix for axes within the dimension cap, a bare diagonal
// for axes above it. Exactly one of Full and Diag is set.
type Factor struct {
	Full *mat.SymDense
	Diag []float64
}

// NewFullFactor returns a zero n x n factor.
func NewFullFactor(n int) *Factor {
	return &Factor{Full: mat.NewSymDense(n, nil)}
}

// NewDiagFactor returns a zero length-n diagonal factor.
func NewDiagFactor(n int) *Factor {
	return &Factor{Diag: make([]float64, n)}
}

// IsDiag reports whether the factor tracks only the diagonal.
func (f *Factor) IsDiag() bool {
	return f.Diag != nil
}

// Dim returns the axis extent the factor covers.
func (f *Factor) Dim() int {
	if f.IsDiag() {
		return len(f.Diag)
	}
	return f.Full.SymmetricDim()
}

// Update folds the axis-unfolded outer product of g into the factor as an
// exponential moving average with rate beta.
func (f *Factor) Update(g *tensor.Tensor, axis int, beta float64) {
	if f.IsDiag() {
		linalg.AccumulateOuterDiag(f.Diag, g, axis, beta)
		return
	}
	linalg.AccumulateOuter(f.Full, g, axis, beta)
}

// Corrected returns the bias-corrected full matrix scale/(1-beta^step)
// applied to a copy of the factor. Only valid for full factors.
func (f *Factor) Corrected(scale float64) *mat.SymDense {
	n := f.Full.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, f.Full.At(i, j)*scale)
		}
	}
	return out
}

// Export copies the factor into a Float64 tensor: shape (n, n) for full
// factors, (n) for diagonal ones.
func (f *Factor) Export() *tensor.Tensor {
	if f.IsDiag() {
		t, err := tensor.FromFloat64(tensor.Shape{len(f.Diag)}, f.Diag)
		if err != nil {
			panic(err)
		}
		return t
	}
	n := f.Full.SymmetricDim()
	t, err := tensor.New(tensor.Shape{n, n}, tensor.Float64)
	if err != nil {
		panic(err)
	}
	data := t.AsFloat64()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = f.Full.At(i, j)
		}
	}
	return t
}

// Import restores the factor from a tensor produced by Export. The tensor
// shape must match the factor layout exactly.
func (f *Factor) Import(t *tensor.Tensor) error {
	if t.DType() != tensor.Float64 {
		return fmt.Errorf("factor tensor dtype is %s, want float64", t.DType())
	}
	if f.IsDiag() {
		if !t.Shape().Equal(tensor.Shape{len(f.Diag)}) {
			return fmt.Errorf("factor tensor shape %s, want (%d)", t.Shape(), len(f.Diag))
		}
		copy(f.Diag, t.AsFloat64())
		return nil
	}
	n := f.Full.SymmetricDim()
	if !t.Shape().Equal(tensor.Shape{n, n}) {
		return fmt.Errorf("factor tensor shape %s, want (%d, %d)", t.Shape(), n, n)
	}
	data := t.AsFloat64()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			f.Full.SetSym(i, j, 0.5*(data[i*n+j]+data[j*n+i]))
		}
	}
	return nil
}

// KronFactor is one axis of a fitted preconditioner: an upper-triangular
// matrix within the dimension cap, a positive diagonal above it. Exactly one
// of Tri and Diag is set.
type KronFactor struct {
	Tri  *mat.TriDense
	Diag []float64
}

// NewTriKronFactor returns an upper-triangular factor initialized to
// scale times the identity.
func NewTriKronFactor(n int, scale float64) *KronFactor {
	q := mat.NewTriDense(n, mat.Upper, nil)
	for i := 0; i < n; i++ {
		q.SetTri(i, i, scale)
	}
	return &KronFactor{Tri: q}
}

// NewDiagKronFactor returns a diagonal factor initialized to scale.
func NewDiagKronFactor(n int, scale float64) *KronFactor {
	d := make([]float64, n)
	for i := range d {
		d[i] = scale
	}
	return &KronFactor{Diag: d}
}

// IsDiag reports whether the factor is diagonal.
func (k *KronFactor) IsDiag() bool {
	return k.Diag != nil
}

// Dim returns the axis extent the factor covers.
func (k *KronFactor) Dim() int {
	if k.IsDiag() {
		return len(k.Diag)
	}
	n, _ := k.Tri.Triangle()
	return n
}

// Rescale multiplies every entry by s.
func (k *KronFactor) Rescale(s float64) {
	if k.IsDiag() {
		for i := range k.Diag {
			k.Diag[i] *= s
		}
		return
	}
	n, _ := k.Tri.Triangle()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.Tri.SetTri(i, j, k.Tri.At(i, j)*s)
		}
	}
}

// Export copies the factor into a Float64 tensor: shape (n, n) with zeros
// below the diagonal for triangular factors, (n) for diagonal ones.
func (k *KronFactor) Export() *tensor.Tensor {
	if k.IsDiag() {
		t, err := tensor.FromFloat64(tensor.Shape{len(k.Diag)}, k.Diag)
		if err != nil {
			panic(err)
		}
		return t
	}
	n, _ := k.Tri.Triangle()
	t, err := tensor.New(tensor.Shape{n, n}, tensor.Float64)
	if err != nil {
		panic(err)
	}
	data := t.AsFloat64()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			data[i*n+j] = k.Tri.At(i, j)
		}
	}
	return t
}

// Import restores the factor from a tensor produced by Export.
func (k *KronFactor) Import(t *tensor.Tensor) error {
	if t.DType() != tensor.Float64 {
		return fmt.Errorf("kron tensor dtype is %s, want float64", t.DType())
	}
	if k.IsDiag() {
		if !t.Shape().Equal(tensor.Shape{len(k.Diag)}) {
			return fmt.Errorf("kron tensor shape %s, want (%d)", t.Shape(), len(k.Diag))
		}
		copy(k.Diag, t.AsFloat64())
		return nil
	}
	n, _ := k.Tri.Triangle()
	if !t.Shape().Equal(tensor.Shape{n, n}) {
		return fmt.Errorf("kron tensor shape %s, want (%d, %d)", t.Shape(), n, n)
	}
	data := t.AsFloat64()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.Tri.SetTri(i, j, data[i*n+j])
		}
	}
	return nil
}

// biasCorrection returns 1/(1 - beta^step), the read-time correction for an
// exponential moving average that started from zero.
func biasCorrection(beta float64, step int64) float64 {
	return 1.0 / (1.0 - math.Pow(beta, float64(step)))
}
