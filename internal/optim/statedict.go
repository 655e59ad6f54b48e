package optim

import (
	"fmt"
	"sort"

	"github.com/ballast-ml/ballast/internal/precond"
	"github.com/ballast-ml/ballast/internal/tensor"
)

// StateDict flattens every parameter's optimizer state into named tensors.
//
// Keys are "<param>.<field>", with a trailing axis index for the per-axis
// entries:
//
//	<param>.step           scalar float64, the per-parameter step counter
//	<param>.momentum       float32, parameter-shaped
//	<param>.second_moment  float32, parameter-shaped (soap, adamw)
//	<param>.factor.<axis>  float64 curvature factor (soap, shampoo)
//	<param>.root.<axis>    float64 cached inverse root (shampoo)
//	<param>.basis.<axis>   float64 cached eigenbasis (soap)
//	<param>.kron.<axis>    float64 fitted factor (psgd)
//
// Parameters that have not been stepped yet are materialized first, so the
// dict always covers every registered parameter. The returned tensors are
// copies; mutating them does not disturb the optimizer.
func (o *Optimizer) StateDict() (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor)
	for _, b := range o.bounds {
		st, err := o.ensureState(b)
		if err != nil {
			return nil, err
		}
		name := b.param.Name()

		step, err := tensor.FromFloat64(tensor.Shape{}, []float64{float64(st.Step)})
		if err != nil {
			return nil, err
		}
		out[name+".step"] = step
		out[name+".momentum"] = st.Momentum.Clone()
		if st.SecondMoment != nil {
			out[name+".second_moment"] = st.SecondMoment.Clone()
		}
		for i, f := range st.Factors {
			out[fmt.Sprintf("%s.factor.%d", name, i)] = f.Export()
		}
		for i, r := range st.Roots {
			if r != nil {
				out[fmt.Sprintf("%s.root.%d", name, i)] = r.Export()
			}
		}
		for i, q := range st.Basis {
			if q != nil {
				out[fmt.Sprintf("%s.basis.%d", name, i)] = precond.TensorFromDense(q)
			}
		}
		for i, k := range st.Kron {
			out[fmt.Sprintf("%s.kron.%d", name, i)] = k.Export()
		}
	}
	return out, nil
}

// LoadStateDict restores every parameter's state from a dict produced by
// StateDict.
//
// Every entry is validated against the current parameter shapes and the
// configured algorithm's layout before anything is replaced: a dict from a
// mismatched run fails without touching the live state. Required entries
// (step, momentum, factors) must be present for every registered parameter;
// cached entries (roots, bases) are restored when present and recomputed at
// the next scheduled refresh otherwise.
func (o *Optimizer) LoadStateDict(sd map[string]*tensor.Tensor) error {
	staged := make(map[*Parameter]*precond.State, len(o.bounds))
	consumed := make(map[string]bool, len(sd))

	take := func(key string) (*tensor.Tensor, bool) {
		t, ok := sd[key]
		if ok {
			consumed[key] = true
		}
		return t, ok
	}

	for _, b := range o.bounds {
		name := b.param.Name()
		st, err := o.freshState(b)
		if err != nil {
			return err
		}

		stepT, ok := take(name + ".step")
		if !ok {
			return fmt.Errorf("%s.step: %w", name, ErrMissingState)
		}
		if stepT.DType() != tensor.Float64 || stepT.NumElements() != 1 {
			return fmt.Errorf("%s.step must be a float64 scalar: %w", name, ErrShapeMismatch)
		}
		st.Step = int64(stepT.AsFloat64()[0])

		if err := loadBuffer(st.Momentum, take, name+".momentum"); err != nil {
			return err
		}
		if st.SecondMoment != nil {
			if err := loadBuffer(st.SecondMoment, take, name+".second_moment"); err != nil {
				return err
			}
		}

		for i := range st.Factors {
			key := fmt.Sprintf("%s.factor.%d", name, i)
			t, ok := take(key)
			if !ok {
				return fmt.Errorf("%s: %w", key, ErrMissingState)
			}
			if err := st.Factors[i].Import(t); err != nil {
				return fmt.Errorf("%s: %v: %w", key, err, ErrShapeMismatch)
			}
		}

		for i := range st.Roots {
			key := fmt.Sprintf("%s.root.%d", name, i)
			t, ok := take(key)
			if !ok {
				continue
			}
			r, err := precond.FactorFromTensor(t)
			if err != nil {
				return fmt.Errorf("%s: %v: %w", key, err, ErrShapeMismatch)
			}
			if r.IsDiag() != st.Factors[i].IsDiag() || r.Dim() != st.Factors[i].Dim() {
				return fmt.Errorf("%s does not match the factor layout: %w", key, ErrShapeMismatch)
			}
			st.Roots[i] = r
		}

		for i := range st.Basis {
			key := fmt.Sprintf("%s.basis.%d", name, i)
			t, ok := take(key)
			if !ok {
				continue
			}
			if st.Factors[i].IsDiag() {
				return fmt.Errorf("%s: diagonal axes carry no basis: %w", key, ErrShapeMismatch)
			}
			d, err := precond.DenseFromTensor(t)
			if err != nil {
				return fmt.Errorf("%s: %v: %w", key, err, ErrShapeMismatch)
			}
			r, c := d.Dims()
			if n := st.Factors[i].Dim(); r != n || c != n {
				return fmt.Errorf("%s has dims (%d, %d), want (%d, %d): %w", key, r, c, n, n, ErrShapeMismatch)
			}
			st.Basis[i] = d
		}

		for i := range st.Kron {
			key := fmt.Sprintf("%s.kron.%d", name, i)
			t, ok := take(key)
			if !ok {
				return fmt.Errorf("%s: %w", key, ErrMissingState)
			}
			if err := st.Kron[i].Import(t); err != nil {
				return fmt.Errorf("%s: %v: %w", key, err, ErrShapeMismatch)
			}
		}

		staged[b.param] = st
	}

	// Reject leftovers so a dict from a different run or algorithm cannot
	// half-load silently.
	if len(consumed) != len(sd) {
		leftovers := make([]string, 0, len(sd)-len(consumed))
		for k := range sd {
			if !consumed[k] {
				leftovers = append(leftovers, k)
			}
		}
		sort.Strings(leftovers)
		return fmt.Errorf("%s: %w", leftovers[0], ErrUnknownParameter)
	}

	// Nothing failed: swap the staged states in.
	for p, st := range staged {
		o.states[p] = st
	}
	return nil
}

// loadBuffer copies a parameter-shaped float32 entry into dst after
// validating shape and dtype.
func loadBuffer(dst *tensor.Tensor, take func(string) (*tensor.Tensor, bool), key string) error {
	t, ok := take(key)
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrMissingState)
	}
	if t.DType() != dst.DType() || !t.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%s is %s %s, want %s %s: %w",
			key, t.Shape(), t.DType(), dst.Shape(), dst.DType(), ErrShapeMismatch)
	}
	copy(dst.Data(), t.Data())
	return nil
}
