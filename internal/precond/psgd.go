package precond

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// PSGD maintains one upper-triangular (or diagonal) factor per axis and fits
// the factors against a stochastic whitening criterion instead of averaging
// curvature statistics: each fit draws a probe tensor, contracts the gradient
// through the factors and the probe through their inverse transposes, and
// moves every factor against the difference of the two Gram matrices.
//
// Fits run every PrecondFrequency steps; every step applies Q^T Q along each
// axis to the bias-corrected momentum. Probes are derived from (Seed,
// ProbeSeed, Step), so a restored checkpoint replays the identical fit
// sequence.
type PSGD struct {
	opts Options
}

// NewPSGD returns a fitted-preconditioner engine.
func NewPSGD(opts Options) *PSGD {
	return &PSGD{opts: opts}
}

// Init allocates the momentum buffer and one factor per axis: triangular for
// parameters of rank MinKronNDim or higher when the axis fits the dimension
// cap, diagonal otherwise. Scalars carry no factors.
func (ps *PSGD) Init(s *State, shape tensor.Shape) error {
	if err := s.EnsureScratch(shape); err != nil {
		return err
	}
	var err error
	if s.Momentum, err = zerosLike(shape); err != nil {
		return err
	}
	if len(shape) == 0 {
		return nil
	}

	tri := len(shape) >= ps.opts.MinKronNDim
	s.Kron = make([]*KronFactor, len(shape))
	for axis, dim := range shape {
		if tri && dim <= ps.opts.MaxFactorDim {
			s.Kron[axis] = NewTriKronFactor(dim, 1)
		} else {
			s.Kron[axis] = NewDiagKronFactor(dim, 1)
		}
	}
	return nil
}

// Direction fits the factors when the cadence says so, then preconditions
// the bias-corrected momentum with the current (possibly stale) factors.
func (ps *PSGD) Direction(s *State, grad *tensor.Tensor) (*tensor.Tensor, error) {
	if len(s.Kron) > 0 {
		if s.Step == 1 {
			ps.initScale(s, grad)
		}
		if refreshDue(s.Step, ps.opts.PrecondFrequency) {
			if err := ps.fit(s, grad); err != nil {
				return nil, err
			}
		}
	}

	updateMomentum(s, grad, ps.opts.Beta1)

	if len(s.Kron) == 0 {
		readMomentum(s, grad, s.dir, ps.opts.Beta1, ps.opts.Nesterov)
		return s.dir, nil
	}

	readMomentum(s, grad, s.tmp, ps.opts.Beta1, ps.opts.Nesterov)

	mats, diags := ps.kronMats(s)
	applyFactors(s.dir, s.tmp, s.tmp, mats, diags, false)
	copy(s.tmp.Data(), s.dir.Data())
	applyFactors(s.dir, s.tmp, s.tmp, mats, diags, true)
	return s.dir, nil
}

// initScale rescales the identity factors from the first gradient so that
// the initial preconditioner magnitude is (mean g^2 + eps)^(-1/2) overall.
func (ps *PSGD) initScale(s *State, grad *tensor.Tensor) {
	g := grad.AsFloat32()
	sum := 0.0
	for _, v := range g {
		f := float64(v)
		sum += f * f
	}
	mean := sum / float64(len(g))
	scale := math.Pow(mean+ps.opts.Eps, -0.25)
	perAxis := math.Pow(scale, 1/float64(len(s.Kron)))
	for _, k := range s.Kron {
		k.Rescale(perAxis)
	}
}

// fit performs one whitening update of every factor.
func (ps *PSGD) fit(s *State, grad *tensor.Tensor) error {
	shape := grad.Shape()

	mix := uint64(s.Step) * 0x9E3779B97F4A7C15
	seed := ps.opts.Seed ^ s.ProbeSeed ^ int64(mix)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: deterministic, replayable probes
	probe, err := tensor.Randn(shape, tensor.Float64, rng)
	if err != nil {
		return err
	}

	g64, err := tensor.New(shape, tensor.Float64)
	if err != nil {
		return err
	}
	gsrc := grad.AsFloat32()
	gdst := g64.AsFloat64()
	for i := range gdst {
		gdst[i] = float64(gsrc[i])
	}

	contracted, err := tensor.New(shape, tensor.Float64)
	if err != nil {
		return err
	}
	work, err := tensor.New(shape, tensor.Float64)
	if err != nil {
		return err
	}
	conj, err := tensor.New(shape, tensor.Float64)
	if err != nil {
		return err
	}

	// A = G contracted by Q along every axis.
	mats, diags := ps.kronMats(s)
	applyFactors(contracted, work, g64, mats, diags, false)

	// B = probe contracted by Q^-T along every axis. A factor that has
	// degenerated to singular cannot be inverted; restart it from identity
	// and skip this fit.
	invMats := make([]mat.Matrix, len(s.Kron))
	invDiags := make([][]float64, len(s.Kron))
	for axis, k := range s.Kron {
		if k.IsDiag() {
			inv := make([]float64, len(k.Diag))
			for i, q := range k.Diag {
				if q == 0 || math.IsNaN(q) || math.IsInf(q, 0) {
					ps.resetFactors(s)
					return nil
				}
				inv[i] = 1 / q
			}
			invDiags[axis] = inv
			continue
		}
		var inv mat.Dense
		if err := inv.Inverse(k.Tri); err != nil {
			ps.resetFactors(s)
			return nil
		}
		invMats[axis] = &inv
	}
	applyFactors(conj, work, probe, invMats, invDiags, true)

	for axis, k := range s.Kron {
		if k.IsDiag() {
			ps.fitDiag(k, contracted, conj, axis)
		} else {
			ps.fitTri(k, contracted, conj, axis)
		}
	}
	return nil
}

// fitTri moves one triangular factor against triu(A A^T - B B^T) Q, scaled
// by the larger Gram magnitude so the relative step stays bounded.
func (ps *PSGD) fitTri(k *KronFactor, a, b *tensor.Tensor, axis int) {
	n := k.Dim()
	t1 := mat.NewSymDense(n, nil)
	t2 := mat.NewSymDense(n, nil)
	linalg.AccumulateOuter(t1, a, axis, 0)
	linalg.AccumulateOuter(t2, b, axis, 0)

	diff := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			diff.Set(i, j, t1.At(i, j)-t2.At(i, j))
		}
	}
	var delta mat.Dense
	delta.Mul(diff, k.Tri)

	norm := math.Max(maxAbsSym(t1), maxAbsSym(t2)) + 1e-12
	step := ps.opts.PrecondLR / norm
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.Tri.SetTri(i, j, k.Tri.At(i, j)-step*delta.At(i, j))
		}
	}
}

// fitDiag is the diagonal counterpart of fitTri.
func (ps *PSGD) fitDiag(k *KronFactor, a, b *tensor.Tensor, axis int) {
	n := len(k.Diag)
	t1 := make([]float64, n)
	t2 := make([]float64, n)
	linalg.AccumulateOuterDiag(t1, a, axis, 0)
	linalg.AccumulateOuterDiag(t2, b, axis, 0)

	norm := 0.0
	for i := 0; i < n; i++ {
		norm = math.Max(norm, math.Max(math.Abs(t1[i]), math.Abs(t2[i])))
	}
	step := ps.opts.PrecondLR / (norm + 1e-12)
	for i := 0; i < n; i++ {
		k.Diag[i] -= step * (t1[i] - t2[i]) * k.Diag[i]
	}
}

// resetFactors restarts every factor from the identity.
func (ps *PSGD) resetFactors(s *State) {
	for axis, k := range s.Kron {
		if k.IsDiag() {
			s.Kron[axis] = NewDiagKronFactor(len(k.Diag), 1)
		} else {
			s.Kron[axis] = NewTriKronFactor(k.Dim(), 1)
		}
	}
}

// kronMats widens the factors to the applyFactors argument shape.
func (ps *PSGD) kronMats(s *State) ([]mat.Matrix, [][]float64) {
	mats := make([]mat.Matrix, len(s.Kron))
	diags := make([][]float64, len(s.Kron))
	for axis, k := range s.Kron {
		if k.IsDiag() {
			diags[axis] = k.Diag
		} else {
			mats[axis] = k.Tri
		}
	}
	return mats, diags
}

// maxAbsSym returns the largest absolute entry of a symmetric matrix.
func maxAbsSym(m *mat.SymDense) float64 {
	n := m.SymmetricDim()
	out := 0.0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out = math.Max(out, math.Abs(m.At(i, j)))
		}
	}
	return out
}
