package optim

import (
	"math"

	"github.com/ballast-ml/ballast/internal/precond"
)

// Algorithm selects the preconditioning variant a parameter group runs.
type Algorithm string

// Supported algorithm variants.
const (
	// SOAP rotates the gradient into the eigenbasis of Kronecker-factored
	// curvature estimates and runs Adam there.
	SOAP Algorithm = "soap"

	// Shampoo preconditions the momentum with cached inverse roots of the
	// Kronecker factors.
	Shampoo Algorithm = "shampoo"

	// Muon orthogonalizes the momentum of matrix parameters with a
	// Newton-Schulz iteration.
	Muon Algorithm = "muon"

	// PSGD fits one triangular factor per tensor axis against a stochastic
	// whitening criterion.
	PSGD Algorithm = "psgd"

	// AdamW is the elementwise baseline with decoupled weight decay.
	AdamW Algorithm = "adamw"
)

// Config holds the per-group hyperparameters. The zero value of a field
// selects its default; validation happens once, inside New, and never in the
// step path.
//
// Default hyperparameters:
//   - Algorithm: soap
//   - LR: 0.001
//   - Betas: [0.9, 0.999]
//   - ShampooBeta: Betas[1]
//   - Eps: 1e-8
//   - PrecondFrequency: 10
//   - MaxFactorDim: 8192
//   - MinKronNDim: 2
//   - PrecondLR: 0.1
//   - NSSteps: 5
type Config struct {
	// Algorithm picks the engine for this group. Resolved once at
	// construction time, never per step.
	Algorithm Algorithm

	// LR is the learning rate.
	LR float64

	// Betas are the EMA decay rates for the first and second moment.
	Betas [2]float64

	// ShampooBeta is the decay rate of the curvature factors. Zero selects
	// Betas[1].
	ShampooBeta float64

	// Eps guards divisions and matrix roots against zero denominators.
	Eps float64

	// WeightDecay is decoupled: it shrinks the parameter value directly and
	// never passes through the preconditioner.
	WeightDecay float64

	// DecayAfterUpdate applies the weight decay to the post-update value
	// instead of the pre-update one. Either way the decay reads the current
	// parameter value, never a preconditioned quantity.
	DecayAfterUpdate bool

	// ClipNorm rescales gradients whose L2 norm exceeds it. Clipping runs
	// on the raw gradient, before any statistics accumulate, so curvature
	// estimates see the same scale the update does. Zero disables it.
	ClipNorm float64

	// PrecondFrequency is the cadence, in steps, of the amortized
	// recomputes: inverse roots (shampoo), eigenbases (soap) and factor
	// fits (psgd). Steps in between reuse the stale cache.
	PrecondFrequency int

	// MaxFactorDim caps the axis extent a full factor may cover. Larger
	// axes degrade to diagonal tracking instead of failing.
	MaxFactorDim int

	// Precondition1D enables Kronecker factors for 1-D parameters, which
	// otherwise fall back to elementwise statistics.
	Precondition1D bool

	// MinKronNDim is the smallest parameter rank that gets triangular
	// fitted factors under psgd.
	MinKronNDim int

	// PrecondLR is the fitting rate for psgd factor updates.
	PrecondLR float64

	// NSSteps is the Newton-Schulz iteration count for muon.
	NSSteps int

	// Nesterov blends the current gradient into the momentum read.
	Nesterov bool

	// Seed drives the deterministic probe sequence for psgd fitting.
	Seed int64

	// Strict converts skipped non-finite gradients into errors. The default
	// reports them through Notify and the stats counters and keeps going.
	Strict bool

	// Notify, when set, receives one event per skipped update. With
	// Workers > 1 it must be safe for concurrent use.
	Notify func(InstabilityEvent)

	// Workers caps the goroutines Step fans out across parameters. Zero or
	// one keeps Step sequential.
	Workers int
}

// withDefaults returns a copy with zero-valued fields resolved.
func (c Config) withDefaults() Config {
	if c.Algorithm == "" {
		c.Algorithm = SOAP
	}
	if c.LR == 0 {
		c.LR = 0.001
	}
	if c.Betas[0] == 0 {
		c.Betas[0] = 0.9
	}
	if c.Betas[1] == 0 {
		c.Betas[1] = 0.999
	}
	if c.ShampooBeta == 0 {
		c.ShampooBeta = c.Betas[1]
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
	if c.PrecondFrequency == 0 {
		c.PrecondFrequency = 10
	}
	if c.MaxFactorDim == 0 {
		c.MaxFactorDim = 8192
	}
	if c.MinKronNDim == 0 {
		c.MinKronNDim = 2
	}
	if c.PrecondLR == 0 {
		c.PrecondLR = 0.1
	}
	if c.NSSteps == 0 {
		c.NSSteps = 5
	}
	return c
}

// validate checks every field of an already-defaulted config.
func (c *Config) validate() error {
	switch c.Algorithm {
	case SOAP, Shampoo, Muon, PSGD, AdamW:
	default:
		return &ConfigError{Option: "Algorithm", Value: c.Algorithm, Reason: "must be soap, shampoo, muon, psgd or adamw"}
	}
	if !(c.LR > 0) || math.IsInf(c.LR, 0) {
		return &ConfigError{Option: "LR", Value: c.LR, Reason: "must be a positive finite number"}
	}
	if !(c.Betas[0] >= 0 && c.Betas[0] < 1) {
		return &ConfigError{Option: "Betas[0]", Value: c.Betas[0], Reason: "must be in [0, 1)"}
	}
	if !(c.Betas[1] >= 0 && c.Betas[1] < 1) {
		return &ConfigError{Option: "Betas[1]", Value: c.Betas[1], Reason: "must be in [0, 1)"}
	}
	if !(c.ShampooBeta >= 0 && c.ShampooBeta < 1) {
		return &ConfigError{Option: "ShampooBeta", Value: c.ShampooBeta, Reason: "must be in [0, 1)"}
	}
	if !(c.Eps > 0) || math.IsInf(c.Eps, 0) {
		return &ConfigError{Option: "Eps", Value: c.Eps, Reason: "must be a positive finite number"}
	}
	if !(c.WeightDecay >= 0) || math.IsInf(c.WeightDecay, 0) {
		return &ConfigError{Option: "WeightDecay", Value: c.WeightDecay, Reason: "must be zero or a positive finite number"}
	}
	if !(c.ClipNorm >= 0) || math.IsInf(c.ClipNorm, 0) {
		return &ConfigError{Option: "ClipNorm", Value: c.ClipNorm, Reason: "must be zero or a positive finite number"}
	}
	if c.PrecondFrequency < 1 {
		return &ConfigError{Option: "PrecondFrequency", Value: c.PrecondFrequency, Reason: "must be at least 1"}
	}
	if c.MaxFactorDim < 1 {
		return &ConfigError{Option: "MaxFactorDim", Value: c.MaxFactorDim, Reason: "must be at least 1"}
	}
	if c.MinKronNDim < 1 {
		return &ConfigError{Option: "MinKronNDim", Value: c.MinKronNDim, Reason: "must be at least 1"}
	}
	if !(c.PrecondLR > 0) || math.IsInf(c.PrecondLR, 0) {
		return &ConfigError{Option: "PrecondLR", Value: c.PrecondLR, Reason: "must be a positive finite number"}
	}
	if c.NSSteps < 1 {
		return &ConfigError{Option: "NSSteps", Value: c.NSSteps, Reason: "must be at least 1"}
	}
	if c.Workers < 0 {
		return &ConfigError{Option: "Workers", Value: c.Workers, Reason: "must be zero or positive"}
	}
	return nil
}

// engineOptions projects the config onto the engine hyperparameters.
func (c *Config) engineOptions() precond.Options {
	return precond.Options{
		Beta1:            c.Betas[0],
		Beta2:            c.Betas[1],
		ShampooBeta:      c.ShampooBeta,
		Eps:              c.Eps,
		PrecondFrequency: c.PrecondFrequency,
		MaxFactorDim:     c.MaxFactorDim,
		Precondition1D:   c.Precondition1D,
		MinKronNDim:      c.MinKronNDim,
		PrecondLR:        c.PrecondLR,
		NSSteps:          c.NSSteps,
		Nesterov:         c.Nesterov,
		Seed:             c.Seed,
	}
}

// newEngine dispatches the algorithm variant once for a group.
func newEngine(c *Config) precond.Preconditioner {
	opts := c.engineOptions()
	switch c.Algorithm {
	case Shampoo:
		return precond.NewShampoo(opts)
	case Muon:
		return precond.NewMuon(opts)
	case PSGD:
		return precond.NewPSGD(opts)
	case AdamW:
		return precond.NewAdamW(opts)
	default:
		return precond.NewSOAP(opts)
	}
}
