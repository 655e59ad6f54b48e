package precond

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// floatEqual compares floats with epsilon tolerance.
func floatEqual(a, b, epsilon float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

func float64Equal(a, b, epsilon float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

// testOptions returns the hyperparameters the engine tests start from.
func testOptions() Options {
	return Options{
		Beta1:            0.9,
		Beta2:            0.999,
		ShampooBeta:      0.99,
		Eps:              1e-8,
		PrecondFrequency: 10,
		MaxFactorDim:     8192,
		MinKronNDim:      2,
		PrecondLR:        0.1,
		NSSteps:          5,
	}
}

// newEngineState initializes a state the way the step controller does.
func newEngineState(t *testing.T, p Preconditioner, shape tensor.Shape) *State {
	t.Helper()
	s := NewState()
	if err := p.Init(s, shape); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

// stepEngine advances the step counter and runs one Direction call.
func stepEngine(t *testing.T, p Preconditioner, s *State, grad *tensor.Tensor) *tensor.Tensor {
	t.Helper()
	s.Step++
	dir, err := p.Direction(s, grad)
	if err != nil {
		t.Fatalf("Direction failed at step %d: %v", s.Step, err)
	}
	return dir
}

func fromFloat32(t *testing.T, shape tensor.Shape, values []float32) *tensor.Tensor {
	t.Helper()
	tn, err := tensor.FromFloat32(shape, values)
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}
	return tn
}

func TestFullFactorExportImportRoundTrip(t *testing.T) {
	f := NewFullFactor(2)
	f.Full.SetSym(0, 0, 1.5)
	f.Full.SetSym(0, 1, -0.25)
	f.Full.SetSym(1, 1, 2.0)

	exported := f.Export()
	if !exported.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("export shape = %v, want (2, 2)", exported.Shape())
	}

	restored := NewFullFactor(2)
	if err := restored.Import(exported); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if restored.Full.At(0, 1) != -0.25 || restored.Full.At(1, 1) != 2.0 {
		t.Errorf("restored factor = %v", restored.Full)
	}
}

func TestDiagFactorExportImportRoundTrip(t *testing.T) {
	f := NewDiagFactor(3)
	copy(f.Diag, []float64{1, 2, 3})

	exported := f.Export()
	if !exported.Shape().Equal(tensor.Shape{3}) {
		t.Fatalf("export shape = %v, want (3)", exported.Shape())
	}

	restored := NewDiagFactor(3)
	if err := restored.Import(exported); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if restored.Diag[2] != 3 {
		t.Errorf("restored diag = %v", restored.Diag)
	}
}

func TestFactorImportShapeMismatch(t *testing.T) {
	f := NewFullFactor(2)
	wrong, _ := tensor.New(tensor.Shape{3, 3}, tensor.Float64)
	if err := f.Import(wrong); err == nil {
		t.Error("expected error importing a 3x3 tensor into a 2x2 factor")
	}

	d := NewDiagFactor(2)
	if err := d.Import(wrong); err == nil {
		t.Error("expected error importing a matrix tensor into a diagonal factor")
	}
}

func TestKronFactorExportImportRoundTrip(t *testing.T) {
	k := NewTriKronFactor(2, 1)
	k.Tri.SetTri(0, 1, 0.5)
	k.Tri.SetTri(1, 1, 2)

	exported := k.Export()
	data := exported.AsFloat64()
	// Row-major (2, 2) with a zero below the diagonal.
	if data[0] != 1 || data[1] != 0.5 || data[2] != 0 || data[3] != 2 {
		t.Fatalf("exported data = %v", data)
	}

	restored, err := KronFactorFromTensor(exported)
	if err != nil {
		t.Fatalf("KronFactorFromTensor failed: %v", err)
	}
	if restored.IsDiag() || restored.Tri.At(0, 1) != 0.5 {
		t.Errorf("restored kron factor = %+v", restored)
	}
}

func TestFactorFromTensorKinds(t *testing.T) {
	diagT, _ := tensor.FromFloat64(tensor.Shape{4}, []float64{1, 2, 3, 4})
	f, err := FactorFromTensor(diagT)
	if err != nil {
		t.Fatalf("FactorFromTensor failed: %v", err)
	}
	if !f.IsDiag() {
		t.Error("rank-1 tensor should restore a diagonal factor")
	}

	fullT, _ := tensor.New(tensor.Shape{2, 2}, tensor.Float64)
	f, err = FactorFromTensor(fullT)
	if err != nil {
		t.Fatalf("FactorFromTensor failed: %v", err)
	}
	if f.IsDiag() {
		t.Error("rank-2 tensor should restore a full factor")
	}

	bad, _ := tensor.New(tensor.Shape{2, 3}, tensor.Float64)
	if _, err := FactorFromTensor(bad); err == nil {
		t.Error("expected error for a non-square matrix tensor")
	}
}

func TestDenseTensorRoundTrip(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})

	tn := TensorFromDense(d)
	if !tn.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("tensor shape = %v", tn.Shape())
	}

	back, err := DenseFromTensor(tn)
	if err != nil {
		t.Fatalf("DenseFromTensor failed: %v", err)
	}
	if back.At(1, 2) != 6 {
		t.Errorf("round trip lost data: %v", back.At(1, 2))
	}
}

func TestBiasCorrection(t *testing.T) {
	// 1/(1-0.9^1) = 10
	if !float64Equal(biasCorrection(0.9, 1), 10, 1e-12) {
		t.Errorf("biasCorrection(0.9, 1) = %v", biasCorrection(0.9, 1))
	}
	// 1/(1-0.9^2) = 5.2631578...
	if !float64Equal(biasCorrection(0.9, 2), 1/(1-0.81), 1e-12) {
		t.Errorf("biasCorrection(0.9, 2) = %v", biasCorrection(0.9, 2))
	}
	// The correction decays to 1 as the average fills in.
	if !float64Equal(biasCorrection(0.9, 1000), 1, 1e-9) {
		t.Errorf("biasCorrection(0.9, 1000) = %v", biasCorrection(0.9, 1000))
	}
}

func TestRefreshDue(t *testing.T) {
	for step := int64(1); step <= 5; step++ {
		if !refreshDue(step, 1) {
			t.Errorf("frequency 1 must refresh every step, failed at %d", step)
		}
	}

	wantTrue := map[int64]bool{1: true, 6: true, 11: true}
	for step := int64(1); step <= 12; step++ {
		if got := refreshDue(step, 5); got != wantTrue[step] {
			t.Errorf("refreshDue(%d, 5) = %v", step, got)
		}
	}
}

func TestFactorLayout(t *testing.T) {
	if _, ok := factorLayout(tensor.Shape{}, 8, false); ok {
		t.Error("scalars must not get factors")
	}
	if _, ok := factorLayout(tensor.Shape{5}, 8, false); ok {
		t.Error("1-D parameters must not get factors without Precondition1D")
	}

	full, ok := factorLayout(tensor.Shape{5}, 8, true)
	if !ok || len(full) != 1 || !full[0] {
		t.Errorf("Precondition1D layout = %v, %v", full, ok)
	}

	full, ok = factorLayout(tensor.Shape{4, 100}, 8, false)
	if !ok || !full[0] || full[1] {
		t.Errorf("capped layout = %v, %v; want full, diag", full, ok)
	}
}
