// Package optim implements preconditioned optimization algorithms for
// training neural networks.
//
// This package provides:
//   - Optimizer: the step controller driving one or more parameter groups
//   - Algorithm variants: soap, shampoo, muon, psgd, adamw
//   - State dicts and snapshot round-trips for checkpointing
//
// Design inspired by PyTorch's torch.optim but adapted for Go with type
// safety: each parameter group binds its configuration to one engine at
// construction time, and every parameter carries its own state machine.
//
// Example usage:
//
//	opt, err := optim.New(params, optim.Config{
//	    Algorithm: optim.SOAP,
//	    LR:        3e-4,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Training loop
//	for step := range steps {
//	    attachGradients(params, batch)
//	    if err := opt.Step(); err != nil {
//	        return err
//	    }
//	    opt.ZeroGrad()
//	}
package optim

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"github.com/ballast-ml/ballast/internal/linalg"
	"github.com/ballast-ml/ballast/internal/parallel"
	"github.com/ballast-ml/ballast/internal/precond"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Group binds a set of parameters to one configuration. Groups let a single
// optimizer drive, say, matrix weights with muon and embeddings with adamw.
type Group struct {
	Params []*Parameter
	Config Config
}

// group is a Group after validation, with its engine resolved.
type group struct {
	params []*Parameter
	cfg    Config
	engine precond.Preconditioner
}

// bound is one (parameter, group) pair in step order.
type bound struct {
	param *Parameter
	group *group
}

// counters accumulate across Step calls. Atomics because parallel steps
// update them from worker goroutines.
type counters struct {
	steps      atomic.Int64
	updates    atomic.Int64
	clipped    atomic.Int64
	zeroGrads  atomic.Int64
	nonFinites atomic.Int64
}

// Optimizer orchestrates one optimization step across all registered
// parameters: it validates gradients, clips them, invokes the group's
// engine, and applies learning rate and decoupled weight decay to the
// parameter values.
//
// Per-parameter state is created lazily on the first step that sees the
// parameter and is owned exclusively by it, so parallel steps need no locks.
type Optimizer struct {
	groups []*group
	bounds []bound
	states map[*Parameter]*precond.State
	stats  counters
}

// New creates an optimizer with a single parameter group.
func New(params []*Parameter, config Config) (*Optimizer, error) {
	return NewGroups([]Group{{Params: params, Config: config}})
}

// NewGroups creates an optimizer over several parameter groups, each with
// its own configuration. Every configuration is defaulted and validated
// here; the algorithm variant is dispatched once per group, never per step.
func NewGroups(groups []Group) (*Optimizer, error) {
	if len(groups) == 0 {
		return nil, &ConfigError{Option: "Groups", Value: 0, Reason: "need at least one parameter group"}
	}

	o := &Optimizer{
		states: make(map[*Parameter]*precond.State),
	}
	names := make(map[string]bool)
	seen := make(map[*Parameter]bool)

	for _, gr := range groups {
		cfg := gr.Config.withDefaults()
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		g := &group{
			params: gr.Params,
			cfg:    cfg,
			engine: newEngine(&cfg),
		}
		for _, p := range gr.Params {
			if p == nil || p.Value() == nil {
				return nil, &ConfigError{Option: "Params", Value: nil, Reason: "parameters must wrap an initialized tensor"}
			}
			if p.Value().DType() != tensor.Float32 {
				return nil, &ConfigError{Option: "Params", Value: p.Name(), Reason: "parameter tensors must be float32"}
			}
			if seen[p] {
				return nil, &ConfigError{Option: "Params", Value: p.Name(), Reason: "parameter registered twice"}
			}
			if names[p.Name()] {
				return nil, &ConfigError{Option: "Params", Value: p.Name(), Reason: "parameter name registered twice"}
			}
			seen[p] = true
			names[p.Name()] = true
			o.bounds = append(o.bounds, bound{param: p, group: g})
		}
		o.groups = append(o.groups, g)
	}
	return o, nil
}

// Step performs one optimization step over every parameter that has a
// gradient attached. Parameters without a gradient are left out entirely,
// including their step counters.
//
// With Workers > 1 on the first group, parameters are processed in
// parallel; parameter state is never shared, so the fan-out needs no
// locking. On error some parameters may already have been updated this
// step.
func (o *Optimizer) Step() error {
	o.stats.steps.Add(1)

	// States materialize before the fan-out so the map never sees a
	// concurrent write.
	for _, b := range o.bounds {
		if b.param.Grad() == nil {
			continue
		}
		if _, err := o.ensureState(b); err != nil {
			return err
		}
	}

	workers := o.groups[0].cfg.Workers
	return parallel.ForEach(len(o.bounds), func(i int) error {
		return o.stepParam(o.bounds[i])
	}, parallel.Config{
		Enabled:    workers > 1,
		NumWorkers: workers,
		MinItems:   2,
	})
}

// stepParam runs the full state machine for one parameter: validate, clip,
// precondition, decay, write back, in that order.
func (o *Optimizer) stepParam(b bound) error {
	p := b.param
	cfg := &b.group.cfg

	grad := p.Grad()
	if grad == nil {
		return nil
	}
	if grad.DType() != tensor.Float32 {
		return fmt.Errorf("gradient for %q has dtype %s: %w", p.Name(), grad.DType(), ErrShapeMismatch)
	}
	if !grad.Shape().Equal(p.Value().Shape()) {
		return fmt.Errorf("gradient for %q has shape %s, parameter has %s: %w",
			p.Name(), grad.Shape(), p.Value().Shape(), ErrShapeMismatch)
	}

	st := o.states[p]

	// The counter advances even when the update is skipped below, keeping
	// bias corrections aligned with the number of calls.
	st.Step++

	if linalg.AllZero(grad.AsFloat32()) {
		o.stats.zeroGrads.Add(1)
		o.notify(cfg, p.Name(), st.Step, ZeroGradient)
		return nil
	}
	if !linalg.AllFinite(grad.AsFloat32()) {
		o.stats.nonFinites.Add(1)
		o.notify(cfg, p.Name(), st.Step, NonFiniteGradient)
		if cfg.Strict {
			return &InstabilityError{Param: p.Name(), Step: st.Step}
		}
		return nil
	}

	// Clip the raw gradient before any statistics accumulate. The caller's
	// buffer is never modified.
	eff := grad
	if cfg.ClipNorm > 0 && linalg.L2Norm(grad.AsFloat32()) > cfg.ClipNorm {
		eff = grad.Clone()
		linalg.ClipNorm(eff.AsFloat32(), cfg.ClipNorm)
		o.stats.clipped.Add(1)
	}

	dir, err := b.group.engine.Direction(st, eff)
	if err != nil {
		return fmt.Errorf("preconditioning %q: %w", p.Name(), err)
	}
	if dir == nil {
		// Warm-up step: statistics accumulated, no update to apply.
		return nil
	}

	applyUpdate(cfg, p, dir)
	o.stats.updates.Add(1)
	return nil
}

// applyUpdate writes the scaled direction and the decoupled weight decay
// into the parameter value.
func applyUpdate(cfg *Config, p *Parameter, dir *tensor.Tensor) {
	lr := float32(cfg.LR)
	decay := float32(cfg.LR * cfg.WeightDecay)
	val := p.Value().AsFloat32()
	d := dir.AsFloat32()

	if decay > 0 && !cfg.DecayAfterUpdate {
		for i := range val {
			val[i] -= decay * val[i]
		}
	}
	for i := range val {
		val[i] -= lr * d[i]
	}
	if decay > 0 && cfg.DecayAfterUpdate {
		for i := range val {
			val[i] -= decay * val[i]
		}
	}
}

// ensureState returns the parameter's state, creating and initializing it on
// first access.
func (o *Optimizer) ensureState(b bound) (*precond.State, error) {
	if st, ok := o.states[b.param]; ok {
		return st, nil
	}
	st, err := o.freshState(b)
	if err != nil {
		return nil, err
	}
	o.states[b.param] = st
	return st, nil
}

// freshState builds an initialized state for the parameter.
func (o *Optimizer) freshState(b bound) (*precond.State, error) {
	st := precond.NewState()
	st.ProbeSeed = probeSeed(b.param.Name())
	if err := b.group.engine.Init(st, b.param.Value().Shape()); err != nil {
		return nil, fmt.Errorf("initializing state for %q: %w", b.param.Name(), err)
	}
	return st, nil
}

// probeSeed derives a stable per-parameter seed from the registration name,
// so probe sequences replay identically after a checkpoint restore without
// the seed being stored.
func probeSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64()) //nolint:gosec // G115: deliberate wrap-around into a seed
}

// notify delivers a skip event to the group's callback, if any.
func (o *Optimizer) notify(cfg *Config, param string, step int64, kind InstabilityKind) {
	if cfg.Notify == nil {
		return
	}
	cfg.Notify(InstabilityEvent{Param: param, Step: step, Kind: kind})
}

// ZeroGrad detaches the gradients of every registered parameter.
//
// This should be called after each step to prevent stale gradients from
// driving the next one.
func (o *Optimizer) ZeroGrad() {
	for _, b := range o.bounds {
		b.param.ZeroGrad()
	}
}

// GetLR returns the current learning rate of the first group.
//
// Useful for monitoring and learning rate scheduling.
func (o *Optimizer) GetLR() float64 {
	return o.groups[0].cfg.LR
}

// SetLR updates the learning rate of every group.
//
// Useful for learning rate scheduling during training.
func (o *Optimizer) SetLR(lr float64) {
	for _, g := range o.groups {
		g.cfg.LR = lr
	}
}

// ResetState drops all per-parameter state. The next step starts from
// fresh statistics, as if the optimizer had just been constructed.
func (o *Optimizer) ResetState() {
	clear(o.states)
}

// Stats returns a snapshot of the lifetime counters.
func (o *Optimizer) Stats() Stats {
	return Stats{
		Steps:              o.stats.steps.Load(),
		Updates:            o.stats.updates.Load(),
		ClippedGradients:   o.stats.clipped.Load(),
		ZeroGradients:      o.stats.zeroGrads.Load(),
		NonFiniteGradients: o.stats.nonFinites.Load(),
	}
}
