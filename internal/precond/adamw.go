package precond

import (
	"math"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// AdamW is the non-factorized baseline variant: elementwise Adam statistics,
// with the decoupled weight decay applied by the step controller. SOAP runs
// the same arithmetic inside its rotated space.
type AdamW struct {
	opts Options
}

// NewAdamW returns the baseline engine.
func NewAdamW(opts Options) *AdamW {
	return &AdamW{opts: opts}
}

// Init allocates the first and second moment buffers.
func (a *AdamW) Init(s *State, shape tensor.Shape) error {
	if err := s.EnsureScratch(shape); err != nil {
		return err
	}
	var err error
	if s.Momentum, err = zerosLike(shape); err != nil {
		return err
	}
	if s.SecondMoment, err = zerosLike(shape); err != nil {
		return err
	}
	return nil
}

// Direction returns mHat / (sqrt(vHat) + eps) with bias-corrected moments.
func (a *AdamW) Direction(s *State, grad *tensor.Tensor) (*tensor.Tensor, error) {
	m := s.Momentum.AsFloat32()
	v := s.SecondMoment.AsFloat32()
	g := grad.AsFloat32()
	out := s.dir.AsFloat32()

	beta1 := float32(a.opts.Beta1)
	beta2 := float32(a.opts.Beta2)
	eps := float32(a.opts.Eps)
	bc1 := float32(biasCorrection(a.opts.Beta1, s.Step))
	bc2 := float32(biasCorrection(a.opts.Beta2, s.Step))

	for i := range out {
		gi := g[i]
		m[i] = beta1*m[i] + (1-beta1)*gi
		v[i] = beta2*v[i] + (1-beta2)*gi*gi
		mHat := m[i] * bc1
		vHat := v[i] * bc2
		out[i] = mHat / (float32(math.Sqrt(float64(vHat))) + eps)
	}
	return s.dir, nil
}
