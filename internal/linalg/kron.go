package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// AxisSplit returns the flattened extent before, at and after the given
// axis. A tensor of shape (d0, ..., dk) viewed at axis i is addressed as
// data[(p*n + a)*post + q] with p < pre, a < n, q < post.
func AxisSplit(shape tensor.Shape, axis int) (pre, n, post int) {
	pre, post = 1, 1
	for i := 0; i < axis; i++ {
		pre *= shape[i]
	}
	n = shape[axis]
	for i := axis + 1; i < len(shape); i++ {
		post *= shape[i]
	}
	return pre, n, post
}

// MulAxis contracts src along one axis with the matrix m, writing the result
// into dst: dst[..., j, ...] = sum_i m[j, i] * src[..., i, ...]. With
// transpose set, m[i, j] is used instead. dst and src must have identical
// shapes and must not alias; the axis extent must match m's dimension.
//
// Applying one factor per axis this way realizes a Kronecker-structured
// product at cost O(n * numElements) per axis instead of materializing the
// full preconditioner.
func MulAxis(dst, src *tensor.Tensor, axis int, m mat.Matrix, transpose bool) {
	if !dst.Shape().Equal(src.Shape()) {
		panic(fmt.Sprintf("shape mismatch: dst %s, src %s", dst.Shape(), src.Shape()))
	}
	pre, n, post := AxisSplit(src.Shape(), axis)
	r, c := m.Dims()
	if r != n || c != n {
		panic(fmt.Sprintf("factor is %dx%d, axis %d has extent %d", r, c, axis, n))
	}

	at := m.At
	if transpose {
		at = func(i, j int) float64 { return m.At(j, i) }
	}

	switch src.DType() {
	case tensor.Float32:
		in, out := src.AsFloat32(), dst.AsFloat32()
		for p := 0; p < pre; p++ {
			base := p * n * post
			for q := 0; q < post; q++ {
				for j := 0; j < n; j++ {
					acc := 0.0
					for i := 0; i < n; i++ {
						acc += at(j, i) * float64(in[base+i*post+q])
					}
					out[base+j*post+q] = float32(acc)
				}
			}
		}
	case tensor.Float64:
		in, out := src.AsFloat64(), dst.AsFloat64()
		for p := 0; p < pre; p++ {
			base := p * n * post
			for q := 0; q < post; q++ {
				for j := 0; j < n; j++ {
					acc := 0.0
					for i := 0; i < n; i++ {
						acc += at(j, i) * in[base+i*post+q]
					}
					out[base+j*post+q] = acc
				}
			}
		}
	}
}

// ScaleAxis multiplies src elementwise along one axis by diag, writing into
// dst: dst[..., a, ...] = diag[a] * src[..., a, ...]. This is the diagonal
// counterpart of MulAxis for factors degraded by the dimension cap. dst may
// alias src.
func ScaleAxis(dst, src *tensor.Tensor, axis int, diag []float64) {
	if !dst.Shape().Equal(src.Shape()) {
		panic(fmt.Sprintf("shape mismatch: dst %s, src %s", dst.Shape(), src.Shape()))
	}
	pre, n, post := AxisSplit(src.Shape(), axis)
	if len(diag) != n {
		panic(fmt.Sprintf("diagonal has %d entries, axis %d has extent %d", len(diag), axis, n))
	}

	switch src.DType() {
	case tensor.Float32:
		in, out := src.AsFloat32(), dst.AsFloat32()
		for p := 0; p < pre; p++ {
			base := p * n * post
			for a := 0; a < n; a++ {
				s := diag[a]
				for q := 0; q < post; q++ {
					out[base+a*post+q] = float32(s * float64(in[base+a*post+q]))
				}
			}
		}
	case tensor.Float64:
		in, out := src.AsFloat64(), dst.AsFloat64()
		for p := 0; p < pre; p++ {
			base := p * n * post
			for a := 0; a < n; a++ {
				s := diag[a]
				for q := 0; q < post; q++ {
					out[base+a*post+q] = s * in[base+a*post+q]
				}
			}
		}
	}
}

// AccumulateOuter folds the axis-unfolded outer product of g into dst as an
// exponential moving average: dst = beta*dst + (1-beta) * G_(axis) G_(axis)^T.
// Only the upper triangle is computed; symmetry and positive
// semi-definiteness are preserved by construction.
func AccumulateOuter(dst *mat.SymDense, g *tensor.Tensor, axis int, beta float64) {
	pre, n, post := AxisSplit(g.Shape(), axis)
	if dst.SymmetricDim() != n {
		panic(fmt.Sprintf("factor is %dx%d, axis %d has extent %d", dst.SymmetricDim(), dst.SymmetricDim(), axis, n))
	}

	acc := make([]float64, n*n)
	fiber := make([]float64, n)
	for p := 0; p < pre; p++ {
		base := p * n * post
		for q := 0; q < post; q++ {
			readFiber(fiber, g, base+q, post)
			for a := 0; a < n; a++ {
				fa := fiber[a]
				if fa == 0 {
					continue
				}
				row := acc[a*n:]
				for b := a; b < n; b++ {
					row[b] += fa * fiber[b]
				}
			}
		}
	}

	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			dst.SetSym(a, b, beta*dst.At(a, b)+(1-beta)*acc[a*n+b])
		}
	}
}

// AccumulateOuterDiag is the diagonal-only form of AccumulateOuter, used
// when an axis exceeds the factor dimension cap:
// dst[a] = beta*dst[a] + (1-beta) * sum over fibers of g[..., a, ...]^2.
func AccumulateOuterDiag(dst []float64, g *tensor.Tensor, axis int, beta float64) {
	pre, n, post := AxisSplit(g.Shape(), axis)
	if len(dst) != n {
		panic(fmt.Sprintf("diagonal has %d entries, axis %d has extent %d", len(dst), axis, n))
	}

	acc := make([]float64, n)
	fiber := make([]float64, n)
	for p := 0; p < pre; p++ {
		base := p * n * post
		for q := 0; q < post; q++ {
			readFiber(fiber, g, base+q, post)
			for a := 0; a < n; a++ {
				acc[a] += fiber[a] * fiber[a]
			}
		}
	}

	for a := 0; a < n; a++ {
		dst[a] = beta*dst[a] + (1-beta)*acc[a]
	}
}

// readFiber gathers the strided axis fiber starting at offset into dst.
func readFiber(dst []float64, g *tensor.Tensor, offset, stride int) {
	switch g.DType() {
	case tensor.Float32:
		data := g.AsFloat32()
		for a := range dst {
			dst[a] = float64(data[offset+a*stride])
		}
	case tensor.Float64:
		data := g.AsFloat64()
		for a := range dst {
			dst[a] = data[offset+a*stride]
		}
	}
}
