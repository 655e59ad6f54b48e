package precond

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Shampoo preconditions the bias-corrected momentum with the inverse
// (2r)-th roots of per-axis curvature factors, r being the number of
// factored axes. Root recomputation is amortized over PrecondFrequency
// steps; in between the stale cache is applied as-is.
type Shampoo struct {
	opts Options
}

// NewShampoo returns a Kronecker-factored root-preconditioning engine.
func NewShampoo(opts Options) *Shampoo {
	return &Shampoo{opts: opts}
}

// Init allocates the momentum buffer and the per-axis factors. 1-D
// parameters get factors only when Precondition1D is set; scalars never do.
func (sh *Shampoo) Init(s *State, shape tensor.Shape) error {
	if err := s.EnsureScratch(shape); err != nil {
		return err
	}
	var err error
	if s.Momentum, err = zerosLike(shape); err != nil {
		return err
	}

	full, ok := factorLayout(shape, sh.opts.MaxFactorDim, sh.opts.Precondition1D)
	if !ok {
		return nil
	}
	s.Factors = make([]*Factor, len(shape))
	s.Roots = make([]*Factor, len(shape))
	for axis, dim := range shape {
		if full[axis] {
			s.Factors[axis] = NewFullFactor(dim)
		} else {
			s.Factors[axis] = NewDiagFactor(dim)
		}
	}
	return nil
}

// Direction accumulates factors from the raw gradient, refreshes the cached
// inverse roots when due, and contracts the bias-corrected momentum by every
// root.
func (sh *Shampoo) Direction(s *State, grad *tensor.Tensor) (*tensor.Tensor, error) {
	for axis, f := range s.Factors {
		f.Update(grad, axis, sh.opts.ShampooBeta)
	}

	if len(s.Factors) > 0 && (refreshDue(s.Step, sh.opts.PrecondFrequency) || s.Roots[0] == nil) {
		if err := sh.refreshRoots(s); err != nil {
			return nil, err
		}
	}

	updateMomentum(s, grad, sh.opts.Beta1)

	if len(s.Factors) == 0 {
		readMomentum(s, grad, s.dir, sh.opts.Beta1, sh.opts.Nesterov)
		return s.dir, nil
	}

	readMomentum(s, grad, s.tmp, sh.opts.Beta1, sh.opts.Nesterov)
	mats := make([]mat.Matrix, len(s.Roots))
	diags := make([][]float64, len(s.Roots))
	for axis, r := range s.Roots {
		if r.IsDiag() {
			diags[axis] = r.Diag
		} else {
			mats[axis] = r.Full
		}
	}
	applyFactors(s.dir, s.tmp, s.tmp, mats, diags, false)
	return s.dir, nil
}

// refreshRoots recomputes the cached inverse (2r)-th roots from the
// bias-corrected factors.
func (sh *Shampoo) refreshRoots(s *State) error {
	order := 2 * len(s.Factors)
	correction := biasCorrection(sh.opts.ShampooBeta, s.Step)

	for axis, f := range s.Factors {
		if f.IsDiag() {
			root := make([]float64, len(f.Diag))
			exp := -1.0 / float64(order)
			for i, l := range f.Diag {
				root[i] = math.Pow(l*correction+sh.opts.Eps, exp)
			}
			s.Roots[axis] = &Factor{Diag: root}
			continue
		}
		root, err := linalg.InverseRoot(f.Corrected(correction), order, sh.opts.Eps)
		if err != nil {
			return err
		}
		s.Roots[axis] = &Factor{Full: root}
	}
	return nil
}
