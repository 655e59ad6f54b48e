package optim

import (
	"io"

	"github.com/ballast-ml/ballast/internal/serialization"
)

// SaveState writes a complete optimizer snapshot to w in .blst format.
//
// The snapshot carries the full state dict plus per-parameter metadata
// (algorithm, step) readable without restoring anything.
func (o *Optimizer) SaveState(w io.Writer) error {
	sd, err := o.StateDict()
	if err != nil {
		return err
	}
	params := make([]serialization.ParamMeta, 0, len(o.bounds))
	for _, b := range o.bounds {
		params = append(params, serialization.ParamMeta{
			Name:      b.param.Name(),
			Algorithm: string(b.group.cfg.Algorithm),
			Step:      o.states[b.param].Step,
		})
	}
	return serialization.Write(w, &serialization.Snapshot{
		Params:  params,
		Tensors: sd,
	})
}

// LoadState restores the optimizer from a snapshot written by SaveState.
//
// Validation follows LoadStateDict: a snapshot from a mismatched run fails
// without touching the live state. A restored optimizer produces the same
// update sequence the saved one would have.
func (o *Optimizer) LoadState(r io.Reader) error {
	snap, err := serialization.Read(r)
	if err != nil {
		return err
	}
	return o.LoadStateDict(snap.Tensors)
}
