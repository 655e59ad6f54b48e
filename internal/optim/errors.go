package optim

import (
	"errors"
	"fmt"
)

// Sentinel errors for gradient and state validation.
var (
	// ErrShapeMismatch reports a gradient or restored tensor whose shape or
	// dtype does not match its parameter. The affected parameter is left
	// untouched.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnknownParameter reports a state-dict entry that matches no
	// registered parameter state.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrMissingState reports a state dict that lacks an entry the
	// configured algorithm needs.
	ErrMissingState = errors.New("missing state entry")
)

// ConfigError reports a configuration field that failed validation.
// Validation runs inside New, before any state is allocated, so a
// misconfigured optimizer never takes a step.
type ConfigError struct {
	Option string // field name, e.g. "LR"
	Value  any    // the rejected value
	Reason string // what a valid value looks like
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("optim: invalid %s=%v: %s", e.Option, e.Value, e.Reason)
}

// InstabilityError is returned from Step in strict mode when a gradient
// carries NaN or Inf values. The parameter's step counter has already
// advanced when this error is returned; its value and momentum have not
// changed.
type InstabilityError struct {
	Param string
	Step  int64
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("optim: non-finite gradient for %q at step %d", e.Param, e.Step)
}
