package precond

import (
	"testing"

	"github.com/ballast-ml/ballast/internal/tensor"
)

func TestAdamWFirstStepIsSignLike(t *testing.T) {
	opts := testOptions()
	eng := NewAdamW(opts)
	s := newEngineState(t, eng, tensor.Shape{2})

	grad := fromFloat32(t, tensor.Shape{2}, []float32{0.5, -0.25})
	dir := stepEngine(t, eng, s, grad)

	// m = 0.1*g and v = 0.001*g^2; the step-1 bias corrections undo both
	// exactly, so the direction is g / (|g| + eps).
	d := dir.AsFloat32()
	if !floatEqual(d[0], 1.0, 1e-5) {
		t.Errorf("dir[0] = %v, want 1.0", d[0])
	}
	if !floatEqual(d[1], -1.0, 1e-5) {
		t.Errorf("dir[1] = %v, want -1.0", d[1])
	}
}

func TestAdamWSecondStep(t *testing.T) {
	opts := testOptions()
	eng := NewAdamW(opts)
	s := newEngineState(t, eng, tensor.Shape{1})

	g1 := fromFloat32(t, tensor.Shape{1}, []float32{1.0})
	g2 := fromFloat32(t, tensor.Shape{1}, []float32{0.5})
	stepEngine(t, eng, s, g1)
	dir := stepEngine(t, eng, s, g2)

	// m2 = 0.9*0.1 + 0.1*0.5           = 0.14
	// v2 = 0.999*0.001 + 0.001*0.25    = 0.001249
	// mHat = 0.14/(1-0.81)             = 0.736842
	// vHat = 0.001249/(1-0.999^2)      = 0.624812
	// dir  = mHat/(sqrt(vHat)+eps)     = 0.932178
	if got := dir.AsFloat32()[0]; !floatEqual(got, 0.932178, 1e-4) {
		t.Errorf("dir = %v, want 0.932178", got)
	}

	if got := s.Momentum.AsFloat32()[0]; !floatEqual(got, 0.14, 1e-6) {
		t.Errorf("momentum = %v, want 0.14", got)
	}
	if got := s.SecondMoment.AsFloat32()[0]; !floatEqual(got, 0.001249, 1e-7) {
		t.Errorf("second moment = %v, want 0.001249", got)
	}
}

func TestAdamWMomentumStoredWithoutCorrection(t *testing.T) {
	opts := testOptions()
	eng := NewAdamW(opts)
	s := newEngineState(t, eng, tensor.Shape{1})

	grad := fromFloat32(t, tensor.Shape{1}, []float32{1.0})
	stepEngine(t, eng, s, grad)

	// The buffer holds the raw EMA; the 1/(1-beta^t) correction only
	// appears in the returned direction.
	if got := s.Momentum.AsFloat32()[0]; !floatEqual(got, 0.1, 1e-7) {
		t.Errorf("momentum = %v, want 0.1", got)
	}
}

func TestAdamWDoesNotMutateGradient(t *testing.T) {
	opts := testOptions()
	eng := NewAdamW(opts)
	s := newEngineState(t, eng, tensor.Shape{3})

	grad := fromFloat32(t, tensor.Shape{3}, []float32{1, -2, 3})
	stepEngine(t, eng, s, grad)

	g := grad.AsFloat32()
	if g[0] != 1 || g[1] != -2 || g[2] != 3 {
		t.Errorf("gradient mutated: %v", g)
	}
}
