// Copyright 2025 Ballast ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides preconditioned optimization algorithms for
// training neural networks.
//
// # Overview
//
// This package contains:
//   - SOAP: Adam in the eigenbasis of Kronecker-factored curvature
//   - Shampoo: inverse-root Kronecker preconditioning of the momentum
//   - Muon: Newton-Schulz orthogonalization for matrix parameters
//   - PSGD: triangular factors fitted to a stochastic whitening criterion
//   - AdamW: the elementwise baseline with decoupled weight decay
//
// # Basic Usage
//
//	import (
//	    "github.com/ballast-ml/ballast/optim"
//	    "github.com/ballast-ml/ballast/tensor"
//	)
//
//	func main() {
//	    weight, _ := tensor.Randn(tensor.Shape{128, 64}, tensor.Float32, rng)
//	    params := []*optim.Parameter{
//	        optim.NewParameter("weight", weight),
//	    }
//
//	    opt, err := optim.New(params, optim.Config{
//	        Algorithm: optim.SOAP,
//	        LR:        3e-4,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Training loop
//	    for step := range steps {
//	        grads := computeGradients(params, batch)
//	        for i, p := range params {
//	            p.SetGrad(grads[i])
//	        }
//	        if err := opt.Step(); err != nil {
//	            log.Fatal(err)
//	        }
//	        opt.ZeroGrad()
//	    }
//	}
//
// # Parameter Groups
//
// Different parameters can run different variants under one optimizer:
//
//	opt, err := optim.NewGroups([]optim.Group{
//	    {Params: matrices, Config: optim.Config{Algorithm: optim.Muon, LR: 0.02}},
//	    {Params: vectors, Config: optim.Config{Algorithm: optim.AdamW, LR: 3e-4}},
//	})
//
// # Checkpointing
//
// SaveState writes a checksummed snapshot that LoadState restores exactly:
// a restored optimizer produces the same update sequence the saved one
// would have.
//
//	var buf bytes.Buffer
//	if err := opt.SaveState(&buf); err != nil {
//	    log.Fatal(err)
//	}
//
//	restored, _ := optim.New(params, cfg)
//	if err := restored.LoadState(&buf); err != nil {
//	    log.Fatal(err)
//	}
package optim
