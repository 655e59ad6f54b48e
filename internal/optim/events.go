package optim

// InstabilityKind names the gradient condition that made Step skip an
// update.
type InstabilityKind string

// Skip reasons reported through the Notify callback.
const (
	// NonFiniteGradient marks a gradient containing NaN or Inf values.
	NonFiniteGradient InstabilityKind = "non_finite_gradient"

	// ZeroGradient marks an all-zero gradient.
	ZeroGradient InstabilityKind = "zero_gradient"
)

// InstabilityEvent describes one skipped update. The parameter keeps its
// value and all accumulated statistics; only its step counter moves.
type InstabilityEvent struct {
	Param string
	Step  int64
	Kind  InstabilityKind
}

// Stats are cumulative counters over the optimizer's lifetime.
type Stats struct {
	Steps              int64 // Step calls made
	Updates            int64 // parameter updates applied
	ClippedGradients   int64 // gradients rescaled by ClipNorm
	ZeroGradients      int64 // updates skipped on all-zero gradients
	NonFiniteGradients int64 // updates skipped on NaN/Inf gradients
}
