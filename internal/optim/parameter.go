package optim

import (
	"github.com/ballast-ml/ballast/internal/tensor"
)

// Parameter is one trainable tensor tracked by an optimizer.
//
// The training loop attaches a gradient before each Step call. The gradient
// belongs to the caller: the optimizer reads it but never modifies it, so
// the same buffer can be reused across iterations.
//
// Example:
//
//	weight := optim.NewParameter("encoder.weight", weightTensor)
//	weight.SetGrad(grad)
//	opt.Step()
//	weight.ZeroGrad()
type Parameter struct {
	name  string
	value *tensor.Tensor
	grad  *tensor.Tensor
}

// NewParameter wraps an initialized tensor as a trainable parameter.
//
// The name identifies the parameter in state dicts and snapshots, so it must
// be unique within one optimizer (e.g. "linear1.weight").
func NewParameter(name string, value *tensor.Tensor) *Parameter {
	return &Parameter{
		name:  name,
		value: value,
	}
}

// Name returns the registration name.
func (p *Parameter) Name() string {
	return p.name
}

// Value returns the parameter tensor. Step updates it in place.
func (p *Parameter) Value() *tensor.Tensor {
	return p.value
}

// Grad returns the attached gradient.
//
// Returns nil if no gradient has been set since the last ZeroGrad.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// SetGrad attaches the gradient for the next step.
func (p *Parameter) SetGrad(grad *tensor.Tensor) {
	p.grad = grad
}

// ZeroGrad detaches the gradient.
//
// A parameter without a gradient is left out of the next Step entirely: its
// step counter does not advance.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
