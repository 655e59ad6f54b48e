// Copyright 2025 Ballast ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/ballast-ml/ballast/internal/optim"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Optimizer orchestrates optimization steps across registered parameters.
type Optimizer = optim.Optimizer

// Config holds the per-group hyperparameters. Zero-valued fields select
// their defaults; validation happens once, at construction time.
type Config = optim.Config

// Group binds a set of parameters to one configuration.
type Group = optim.Group

// Parameter is one trainable tensor tracked by an optimizer.
type Parameter = optim.Parameter

// Algorithm selects the preconditioning variant a parameter group runs.
type Algorithm = optim.Algorithm

// Supported algorithm variants.
const (
	SOAP    = optim.SOAP
	Shampoo = optim.Shampoo
	Muon    = optim.Muon
	PSGD    = optim.PSGD
	AdamW   = optim.AdamW
)

// Stats are cumulative counters over the optimizer's lifetime.
type Stats = optim.Stats

// InstabilityEvent describes one skipped update.
type InstabilityEvent = optim.InstabilityEvent

// InstabilityKind names the gradient condition that made Step skip an
// update.
type InstabilityKind = optim.InstabilityKind

// Skip reasons reported through the Notify callback.
const (
	NonFiniteGradient = optim.NonFiniteGradient
	ZeroGradient      = optim.ZeroGradient
)

// ConfigError reports a configuration field that failed validation.
type ConfigError = optim.ConfigError

// InstabilityError is returned from Step in strict mode when a gradient
// carries NaN or Inf values.
type InstabilityError = optim.InstabilityError

// Sentinel errors for gradient and state validation.
var (
	ErrShapeMismatch    = optim.ErrShapeMismatch
	ErrUnknownParameter = optim.ErrUnknownParameter
	ErrMissingState     = optim.ErrMissingState
)

// NewParameter wraps an initialized tensor as a trainable parameter.
//
// Example:
//
//	weight := optim.NewParameter("encoder.weight", weightTensor)
func NewParameter(name string, value *tensor.Tensor) *Parameter {
	return optim.NewParameter(name, value)
}

// New creates an optimizer with a single parameter group.
//
// Example:
//
//	opt, err := optim.New(params, optim.Config{
//	    Algorithm: optim.SOAP,
//	    LR:        3e-4,
//	})
func New(params []*Parameter, config Config) (*Optimizer, error) {
	return optim.New(params, config)
}

// NewGroups creates an optimizer over several parameter groups, each with
// its own configuration.
//
// Example:
//
//	opt, err := optim.NewGroups([]optim.Group{
//	    {Params: matrices, Config: optim.Config{Algorithm: optim.Muon}},
//	    {Params: vectors, Config: optim.Config{Algorithm: optim.AdamW}},
//	})
func NewGroups(groups []Group) (*Optimizer, error) {
	return optim.NewGroups(groups)
}
