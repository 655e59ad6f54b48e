package optim_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/ballast-ml/ballast/internal/optim"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// resumptionGrad is a deterministic gradient stream shared by the reference
// and the restored run.
func resumptionGrad(step, n int) []float32 {
	g := make([]float32, n)
	for i := range g {
		g[i] = float32(0.5 * math.Sin(0.3*float64(step)+0.7*float64(i)))
	}
	return g
}

// runResumption checks the core checkpoint property: an optimizer restored
// from a state dict continues with exactly the updates the saved one would
// have produced.
func runResumption(t *testing.T, algo optim.Algorithm) {
	t.Helper()
	const preSteps, postSteps = 3, 4
	shape := tensor.Shape{3, 4}
	biasShape := tensor.Shape{5}

	initW := make([]float32, 12)
	for i := range initW {
		initW[i] = float32(i)*0.1 - 0.5
	}
	initB := []float32{0.2, -0.1, 0.4, 0.0, -0.3}

	cfg := optim.Config{
		Algorithm:        algo,
		LR:               0.02,
		PrecondFrequency: 2,
		Seed:             42,
	}

	build := func(w, b []float32) (*optim.Optimizer, *optim.Parameter, *optim.Parameter) {
		pw := newParam(t, "w", shape, w)
		pb := newParam(t, "b", biasShape, b)
		opt, err := optim.New([]*optim.Parameter{pw, pb}, cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return opt, pw, pb
	}

	step := func(opt *optim.Optimizer, pw, pb *optim.Parameter, s int) {
		setGrad(t, pw, resumptionGrad(s, 12))
		setGrad(t, pb, resumptionGrad(100+s, 5))
		if err := opt.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", s, err)
		}
	}

	// Reference run: straight through.
	optRef, refW, refB := build(initW, initB)
	for s := 1; s <= preSteps; s++ {
		step(optRef, refW, refB, s)
	}

	snapW := append([]float32(nil), refW.Value().AsFloat32()...)
	snapB := append([]float32(nil), refB.Value().AsFloat32()...)
	sd, err := optRef.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	for s := preSteps + 1; s <= preSteps+postSteps; s++ {
		step(optRef, refW, refB, s)
	}

	// Restored run: same values, same dict, same gradient stream.
	optNew, newW, newB := build(snapW, snapB)
	if err := optNew.LoadStateDict(sd); err != nil {
		t.Fatalf("LoadStateDict failed: %v", err)
	}
	for s := preSteps + 1; s <= preSteps+postSteps; s++ {
		step(optNew, newW, newB, s)
	}

	if !bytes.Equal(newW.Value().Data(), refW.Value().Data()) {
		t.Error("Restored run diverged from reference on the matrix parameter")
	}
	if !bytes.Equal(newB.Value().Data(), refB.Value().Data()) {
		t.Error("Restored run diverged from reference on the vector parameter")
	}
	if got, want := paramStep(t, optNew, "w"), int64(preSteps+postSteps); got != want {
		t.Errorf("Restored step counter: got %d, want %d", got, want)
	}
}

// TestLoadStateDict_ResumesIdentically covers every algorithm variant,
// crossing a cache-refresh boundary in both segments.
func TestLoadStateDict_ResumesIdentically(t *testing.T) {
	algorithms := []optim.Algorithm{
		optim.SOAP, optim.Shampoo, optim.Muon, optim.PSGD, optim.AdamW,
	}
	for _, algo := range algorithms {
		t.Run(string(algo), func(t *testing.T) {
			runResumption(t, algo)
		})
	}
}

// TestStateDict_Keys verifies the per-parameter key layout for soap.
func TestStateDict_Keys(t *testing.T) {
	w := newParam(t, "w", tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := newParam(t, "bias", tensor.Shape{4}, []float32{1, 2, 3, 4})
	opt, err := optim.New([]*optim.Parameter{w, b}, optim.Config{
		Algorithm:        optim.SOAP,
		PrecondFrequency: 1,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for s := 0; s < 2; s++ {
		setGrad(t, w, []float32{1, 0, 1, 0, 1, 0})
		setGrad(t, b, []float32{1, 1, 1, 1})
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	sd, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	want := []string{
		"w.step", "w.momentum", "w.second_moment",
		"w.factor.0", "w.factor.1", "w.basis.0", "w.basis.1",
		"bias.step", "bias.momentum", "bias.second_moment",
	}
	for _, key := range want {
		if _, ok := sd[key]; !ok {
			t.Errorf("Missing key %q", key)
		}
	}
	if len(sd) != len(want) {
		keys := make([]string, 0, len(sd))
		for k := range sd {
			keys = append(keys, k)
		}
		t.Errorf("Expected %d keys, got %d: %v", len(want), len(sd), keys)
	}
	if _, ok := sd["bias.factor.0"]; ok {
		t.Error("1-D parameter grew a Kronecker factor")
	}
}

// TestStateDict_ReturnsCopies verifies mutating the dict does not disturb
// the optimizer.
func TestStateDict_ReturnsCopies(t *testing.T) {
	param := newParam(t, "x", tensor.Shape{2}, []float32{1, 2})
	opt, err := optim.New([]*optim.Parameter{param}, optim.Config{Algorithm: optim.AdamW})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	setGrad(t, param, []float32{1, 1})
	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	sd, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}
	original := append([]byte(nil), sd["x.momentum"].Data()...)

	for i := range sd["x.momentum"].AsFloat32() {
		sd["x.momentum"].AsFloat32()[i] = 99
	}

	again, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}
	if !bytes.Equal(again["x.momentum"].Data(), original) {
		t.Error("Mutating a returned tensor leaked into the optimizer state")
	}
}

// TestLoadStateDict_MissingEntry rejects dicts lacking a required buffer.
func TestLoadStateDict_MissingEntry(t *testing.T) {
	param := newParam(t, "x", tensor.Shape{2}, []float32{1, 2})
	opt, err := optim.New([]*optim.Parameter{param}, optim.Config{Algorithm: optim.AdamW})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sd, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	delete(sd, "x.momentum")
	if err := opt.LoadStateDict(sd); !errors.Is(err, optim.ErrMissingState) {
		t.Errorf("Expected ErrMissingState, got: %v", err)
	}
}

// TestLoadStateDict_UnknownEntry rejects dicts carrying extra entries.
func TestLoadStateDict_UnknownEntry(t *testing.T) {
	param := newParam(t, "x", tensor.Shape{2}, []float32{1, 2})
	opt, err := optim.New([]*optim.Parameter{param}, optim.Config{Algorithm: optim.AdamW})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sd, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	ghost, err := tensor.FromFloat64(tensor.Shape{}, []float64{1})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	sd["ghost.step"] = ghost

	if err := opt.LoadStateDict(sd); !errors.Is(err, optim.ErrUnknownParameter) {
		t.Errorf("Expected ErrUnknownParameter, got: %v", err)
	}
}

// TestLoadStateDict_ShapeMismatch rejects wrong-shaped buffers and leaves
// the live state untouched.
func TestLoadStateDict_ShapeMismatch(t *testing.T) {
	param := newParam(t, "x", tensor.Shape{2}, []float32{1, 2})
	opt, err := optim.New([]*optim.Parameter{param}, optim.Config{
		Algorithm: optim.AdamW,
		LR:        0.1,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	setGrad(t, param, []float32{1, 1})
	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	before, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	bad, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}
	wrong, err := tensor.FromFloat32(tensor.Shape{3}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	bad["x.momentum"] = wrong

	if err := opt.LoadStateDict(bad); !errors.Is(err, optim.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got: %v", err)
	}

	// The failed load must not have replaced anything.
	after, err := opt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}
	if !bytes.Equal(after["x.momentum"].Data(), before["x.momentum"].Data()) {
		t.Error("Failed load disturbed the live momentum")
	}
	if after["x.step"].AsFloat64()[0] != before["x.step"].AsFloat64()[0] {
		t.Error("Failed load disturbed the live step counter")
	}
}

// TestLoadStateDict_AlgorithmMismatch rejects dicts saved under a different
// variant.
func TestLoadStateDict_AlgorithmMismatch(t *testing.T) {
	shape := tensor.Shape{2, 2}
	vals := []float32{1, 2, 3, 4}

	shampooParam := newParam(t, "w", shape, vals)
	shampooOpt, err := optim.New([]*optim.Parameter{shampooParam}, optim.Config{Algorithm: optim.Shampoo})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	adamwParam := newParam(t, "w", shape, vals)
	adamwOpt, err := optim.New([]*optim.Parameter{adamwParam}, optim.Config{Algorithm: optim.AdamW})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	shampooDict, err := shampooOpt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}
	adamwDict, err := adamwOpt.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	// adamw needs a second moment the shampoo dict does not have.
	if err := adamwOpt.LoadStateDict(shampooDict); !errors.Is(err, optim.ErrMissingState) {
		t.Errorf("Expected ErrMissingState, got: %v", err)
	}
	// shampoo needs curvature factors the adamw dict does not have.
	if err := shampooOpt.LoadStateDict(adamwDict); !errors.Is(err, optim.ErrMissingState) {
		t.Errorf("Expected ErrMissingState, got: %v", err)
	}
}
