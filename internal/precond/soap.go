package precond

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// SOAP runs Adam inside the eigenbasis of Kronecker-factored curvature
// estimates. Factors accumulate every step from the raw gradient; the
// eigenbases are recomputed every PrecondFrequency steps and reused stale in
// between. The first moment lives in the original space so it survives basis
// refreshes; the second moment lives in the rotated space.
//
// The first step only seeds the factors and computes the initial bases; it
// produces no update.
type SOAP struct {
	opts Options
}

// NewSOAP returns an eigenbasis-rotation engine.
func NewSOAP(opts Options) *SOAP {
	return &SOAP{opts: opts}
}

// Init allocates both moment buffers and the per-axis factors. 1-D
// parameters get factors only when Precondition1D is set; scalars never do.
func (so *SOAP) Init(s *State, shape tensor.Shape) error {
	if err := s.EnsureScratch(shape); err != nil {
		return err
	}
	if err := s.EnsureRotScratch(shape); err != nil {
		return err
	}
	var err error
	if s.Momentum, err = zerosLike(shape); err != nil {
		return err
	}
	if s.SecondMoment, err = zerosLike(shape); err != nil {
		return err
	}

	full, ok := factorLayout(shape, so.opts.MaxFactorDim, so.opts.Precondition1D)
	if !ok {
		return nil
	}
	s.Factors = make([]*Factor, len(shape))
	s.Basis = make([]*mat.Dense, len(shape))
	for axis, dim := range shape {
		if full[axis] {
			s.Factors[axis] = NewFullFactor(dim)
		} else {
			s.Factors[axis] = NewDiagFactor(dim)
		}
	}
	return nil
}

// Direction rotates the gradient into the cached eigenbasis, runs the Adam
// quotient there, and rotates the result back. Factors are folded in after
// the update is formed, so a refresh never uses the basis it is replacing.
func (so *SOAP) Direction(s *State, grad *tensor.Tensor) (*tensor.Tensor, error) {
	if s.Step == 1 {
		so.updateFactors(s, grad)
		so.refreshBasis(s)
		return nil, nil
	}

	mats := so.basisMats(s)
	noDiags := make([][]float64, len(mats))

	// g' = Q^T g
	applyFactors(s.rot, s.tmp, grad, mats, noDiags, true)

	updateMomentum(s, grad, so.opts.Beta1)

	v := s.SecondMoment.AsFloat32()
	rg := s.rot.AsFloat32()
	beta2 := float32(so.opts.Beta2)
	for i := range v {
		v[i] = beta2*v[i] + (1-beta2)*rg[i]*rg[i]
	}

	// m' = Q^T m
	applyFactors(s.dir, s.tmp, s.Momentum, mats, noDiags, true)

	// Warm-up skipped the first accumulation, so the moments have seen
	// Step-1 updates.
	bc1 := float32(biasCorrection(so.opts.Beta1, s.Step-1))
	bc2 := float32(biasCorrection(so.opts.Beta2, s.Step-1))
	eps := float32(so.opts.Eps)
	d := s.dir.AsFloat32()
	for i := range d {
		mHat := d[i] * bc1
		vHat := v[i] * bc2
		d[i] = mHat / (float32(math.Sqrt(float64(vHat))) + eps)
	}

	// back to the original space
	applyFactors(s.rot, s.tmp, s.dir, mats, noDiags, false)

	so.updateFactors(s, grad)
	if refreshDue(s.Step, so.opts.PrecondFrequency) {
		so.refreshBasis(s)
	}
	return s.rot, nil
}

func (so *SOAP) updateFactors(s *State, grad *tensor.Tensor) {
	for axis, f := range s.Factors {
		f.Update(grad, axis, so.opts.ShampooBeta)
	}
}

// refreshBasis recomputes the eigenbasis of every full factor. Diagonal
// factors keep a nil basis, which applyFactors treats as identity.
func (so *SOAP) refreshBasis(s *State) {
	for axis, f := range s.Factors {
		if f.IsDiag() {
			continue
		}
		basis, _ := linalg.EigenBasis(f.Full)
		s.Basis[axis] = basis
	}
}

// basisMats widens the cached bases to the applyFactors argument shape. A
// parameter without factors gets an all-nil slice sized by its rank.
func (so *SOAP) basisMats(s *State) []mat.Matrix {
	if s.Basis == nil {
		return make([]mat.Matrix, len(s.Momentum.Shape()))
	}
	mats := make([]mat.Matrix, len(s.Basis))
	for i, b := range s.Basis {
		if b != nil {
			mats[i] = b
		}
	}
	return mats
}
