package precond

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Options carries the resolved hyperparameters an engine reads. Validation
// happens once at configuration time; engines assume the values are sane.
type Options struct {
	Beta1       float64
	Beta2       float64
	ShampooBeta float64
	Eps         float64

	// PrecondFrequency is the refresh cadence for the amortized linear
	// algebra (inverse roots, eigenbases, fitted factors). Steps in between
	// reuse the stale cache.
	PrecondFrequency int

	// MaxFactorDim caps the axis extent a full factor may cover; larger
	// axes degrade to diagonal tracking.
	MaxFactorDim int

	// Precondition1D enables Kronecker factors for 1-D parameters.
	Precondition1D bool

	// MinKronNDim is the smallest parameter rank that gets triangular
	// fitted factors; parameters below it use diagonal ones.
	MinKronNDim int

	// PrecondLR is the fitting rate for PSGD factor updates.
	PrecondLR float64

	// NSSteps is the Newton-Schulz iteration count for Muon.
	NSSteps int

	// Nesterov blends the current gradient into the momentum read.
	Nesterov bool

	// Seed drives the deterministic probe sequence for PSGD fitting.
	Seed int64
}

// Preconditioner turns a raw gradient into an update direction for one
// parameter. Implementations are chosen once per parameter group at
// configuration time, never per step.
type Preconditioner interface {
	// Init allocates the state buffers the variant maintains. Called once,
	// before the first Direction call for the parameter.
	Init(s *State, shape tensor.Shape) error

	// Direction computes the update direction for grad. It must not mutate
	// grad. The returned tensor is owned by the state and stays valid until
	// the next call; a nil tensor with a nil error means the variant
	// produced no update this step (warm-up).
	//
	// s.Step has already been advanced and includes the current call.
	Direction(s *State, grad *tensor.Tensor) (*tensor.Tensor, error)
}

// refreshDue reports whether the amortized recompute is scheduled for this
// step. The cadence starts at the first step, so a freshly initialized state
// computes its cache immediately.
func refreshDue(step int64, frequency int) bool {
	return (step-1)%int64(frequency) == 0
}

// updateMomentum folds grad into the EMA buffer: m = beta1*m + (1-beta1)*g.
func updateMomentum(s *State, grad *tensor.Tensor, beta1 float64) {
	m := s.Momentum.AsFloat32()
	g := grad.AsFloat32()
	b := float32(beta1)
	for i := range m {
		m[i] = b*m[i] + (1-b)*g[i]
	}
}

// readMomentum writes the bias-corrected momentum into dst, optionally with
// a Nesterov blend of the current gradient.
func readMomentum(s *State, grad, dst *tensor.Tensor, beta1 float64, nesterov bool) {
	m := s.Momentum.AsFloat32()
	out := dst.AsFloat32()
	bc := float32(biasCorrection(beta1, s.Step))
	if !nesterov {
		for i := range out {
			out[i] = m[i] * bc
		}
		return
	}
	g := grad.AsFloat32()
	b := float32(beta1)
	for i := range out {
		out[i] = b*m[i]*bc + (1-b)*g[i]
	}
}

// applyFactors contracts src by one matrix or diagonal per axis, ping-ponging
// between dst and scratch so no contraction aliases its input. The result
// always lands in dst. mats and diags are parallel to the axes; a nil entry
// in both means the axis is untouched.
func applyFactors(dst, scratch, src *tensor.Tensor, mats []mat.Matrix, diags [][]float64, transpose bool) {
	cur := src
	target := dst
	for axis := range mats {
		switch {
		case mats[axis] != nil:
			linalg.MulAxis(target, cur, axis, mats[axis], transpose)
		case diags[axis] != nil:
			linalg.ScaleAxis(target, cur, axis, diags[axis])
		default:
			continue
		}
		cur = target
		if cur == dst {
			target = scratch
		} else {
			target = dst
		}
	}
	if cur != dst {
		copy(dst.Data(), cur.Data())
	}
}
