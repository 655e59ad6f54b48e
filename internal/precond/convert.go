package precond

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// FactorFromTensor reconstructs a Factor from its Export form: shape (n, n)
// yields a full factor, shape (n) a diagonal one.
func FactorFromTensor(t *tensor.Tensor) (*Factor, error) {
	var f *Factor
	switch len(t.Shape()) {
	case 1:
		f = NewDiagFactor(t.Shape()[0])
	case 2:
		if t.Shape()[0] != t.Shape()[1] {
			return nil, fmt.Errorf("factor tensor must be square, got %s", t.Shape())
		}
		f = NewFullFactor(t.Shape()[0])
	default:
		return nil, fmt.Errorf("factor tensor must have rank 1 or 2, got %s", t.Shape())
	}
	if err := f.Import(t); err != nil {
		return nil, err
	}
	return f, nil
}

// KronFactorFromTensor reconstructs a KronFactor from its Export form.
func KronFactorFromTensor(t *tensor.Tensor) (*KronFactor, error) {
	var k *KronFactor
	switch len(t.Shape()) {
	case 1:
		k = NewDiagKronFactor(t.Shape()[0], 0)
	case 2:
		if t.Shape()[0] != t.Shape()[1] {
			return nil, fmt.Errorf("kron tensor must be square, got %s", t.Shape())
		}
		k = NewTriKronFactor(t.Shape()[0], 0)
	default:
		return nil, fmt.Errorf("kron tensor must have rank 1 or 2, got %s", t.Shape())
	}
	if err := k.Import(t); err != nil {
		return nil, err
	}
	return k, nil
}

// TensorFromDense copies a dense matrix into a Float64 tensor of shape
// (rows, cols).
func TensorFromDense(d *mat.Dense) *tensor.Tensor {
	r, c := d.Dims()
	t, err := tensor.New(tensor.Shape{r, c}, tensor.Float64)
	if err != nil {
		panic(err)
	}
	data := t.AsFloat64()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = d.At(i, j)
		}
	}
	return t
}

// DenseFromTensor copies a rank-2 Float64 tensor into a dense matrix.
func DenseFromTensor(t *tensor.Tensor) (*mat.Dense, error) {
	if t.DType() != tensor.Float64 {
		return nil, fmt.Errorf("matrix tensor dtype is %s, want float64", t.DType())
	}
	if len(t.Shape()) != 2 {
		return nil, fmt.Errorf("matrix tensor must have rank 2, got %s", t.Shape())
	}
	r, c := t.Shape()[0], t.Shape()[1]
	d := mat.NewDense(r, c, nil)
	data := t.AsFloat64()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Set(i, j, data[i*c+j])
		}
	}
	return d, nil
}
