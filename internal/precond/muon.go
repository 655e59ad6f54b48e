package precond

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Muon keeps a plain momentum EMA and orthogonalizes the read-out direction
// of matrix-shaped parameters with Newton-Schulz. Parameters of rank two or
// higher are flattened to (dim0, rest); 1-D parameters and scalars fall back
// to bias-corrected momentum, where orthogonalization is undefined.
//
// The momentum buffer itself never holds orthogonalized values: the
// iteration runs on the read path only.
type Muon struct {
	opts Options
}

// NewMuon returns an orthogonalizing momentum engine.
func NewMuon(opts Options) *Muon {
	return &Muon{opts: opts}
}

// Init allocates the momentum buffer.
func (mu *Muon) Init(s *State, shape tensor.Shape) error {
	if err := s.EnsureScratch(shape); err != nil {
		return err
	}
	var err error
	s.Momentum, err = zerosLike(shape)
	return err
}

// Direction folds the gradient into the momentum EMA and orthogonalizes the
// bias-corrected read for matrix parameters. The result is scaled by
// sqrt(max(1, rows/cols)) so tall layers keep their update magnitude.
func (mu *Muon) Direction(s *State, grad *tensor.Tensor) (*tensor.Tensor, error) {
	updateMomentum(s, grad, mu.opts.Beta1)
	readMomentum(s, grad, s.dir, mu.opts.Beta1, mu.opts.Nesterov)

	shape := s.Momentum.Shape()
	if len(shape) < 2 {
		return s.dir, nil
	}

	rows := shape[0]
	cols := s.Momentum.NumElements() / rows

	d := s.dir.AsFloat32()
	flat := mat.NewDense(rows, cols, nil)
	data := flat.RawMatrix().Data
	for i := range d {
		data[i] = float64(d[i])
	}

	ortho := linalg.NewtonSchulz(flat, mu.opts.NSSteps)

	scale := math.Sqrt(math.Max(1, float64(rows)/float64(cols)))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d[i*cols+j] = float32(ortho.At(i, j) * scale)
		}
	}
	return s.dir, nil
}
