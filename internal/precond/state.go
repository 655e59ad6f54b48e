package precond

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// State is the complete optimizer state for one parameter. Exactly one
// goroutine touches a State at a time: the step loop partitions work by
// parameter, so no field needs locking.
//
// Unused fields stay nil for variants that do not maintain them.
type State struct {
	// Step counts update calls, including skipped ones. It advances exactly
	// once per call and is 1-based inside an engine invocation.
	Step int64

	// Momentum is the EMA of gradients. Bias correction is applied where the
	// buffer is read, never folded into the stored values.
	Momentum *tensor.Tensor

	// SecondMoment is the EMA of squared gradients (rotated space for SOAP).
	SecondMoment *tensor.Tensor

	// Factors hold per-axis curvature EMAs for Shampoo and SOAP.
	Factors []*Factor

	// Roots cache the inverse p-th roots of Factors (Shampoo). Refreshed
	// every PrecondFrequency steps; reads in between use the stale cache.
	Roots []*Factor

	// Basis caches per-axis eigenbases (SOAP). A nil entry means identity.
	Basis []*mat.Dense

	// Kron is the fitted preconditioner (PSGD), one factor per axis.
	Kron []*KronFactor

	// ProbeSeed mixes into the deterministic probe stream for fitted
	// preconditioners. The controller derives it from the parameter name, so
	// it survives checkpoint restore without being stored.
	ProbeSeed int64

	// dir and tmp are engine scratch, sized like the parameter. rot is the
	// extra rotation buffer SOAP needs.
	dir *tensor.Tensor
	tmp *tensor.Tensor
	rot *tensor.Tensor
}

// NewState allocates the variant-independent pieces of a parameter state.
// Engines fill in their own buffers during Init.
func NewState() *State {
	return &State{}
}

// EnsureScratch allocates the two Float32 scratch buffers on first use.
func (s *State) EnsureScratch(shape tensor.Shape) error {
	if s.dir != nil {
		return nil
	}
	var err error
	if s.dir, err = tensor.New(shape, tensor.Float32); err != nil {
		return err
	}
	if s.tmp, err = tensor.New(shape, tensor.Float32); err != nil {
		return err
	}
	return nil
}

// EnsureRotScratch allocates the rotation buffer on first use.
func (s *State) EnsureRotScratch(shape tensor.Shape) error {
	if s.rot != nil {
		return nil
	}
	var err error
	s.rot, err = tensor.New(shape, tensor.Float32)
	return err
}

// Dir returns the direction scratch buffer.
func (s *State) Dir() *tensor.Tensor { return s.dir }

// Tmp returns the secondary scratch buffer.
func (s *State) Tmp() *tensor.Tensor { return s.tmp }

// zerosLike allocates a zero Float32 tensor with the parameter's shape.
func zerosLike(shape tensor.Shape) (*tensor.Tensor, error) {
	return tensor.New(shape, tensor.Float32)
}

// factorLayout decides, per axis, whether a curvature factor is tracked as a
// full matrix or degraded to a diagonal by the dimension cap. The second
// return value is false when the parameter gets no Kronecker factors at all
// (1-D parameters without Precondition1D, and scalars).
func factorLayout(shape tensor.Shape, maxDim int, precondition1D bool) ([]bool, bool) {
	if len(shape) == 0 {
		return nil, false
	}
	if len(shape) == 1 && !precondition1D {
		return nil, false
	}
	full := make([]bool, len(shape))
	for i, dim := range shape {
		full[i] = dim <= maxDim
	}
	return full, true
}

