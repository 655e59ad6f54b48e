// Package parallel provides the fan-out helper the optimizer uses to
// partition per-parameter work across goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinItems   int  // Minimum items before goroutines pay off.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinItems:   2,
	}
}

// ForEach executes f(i) for i in [0, n) with optional parallelism and
// returns the first error any call produced. Items must be independent: f is
// invoked from multiple goroutines at once when parallelism is on.
//
// Falls back to sequential execution, stopping at the first error, if
// parallelism is disabled or n is too small.
func ForEach(n int, f func(i int) error, cfg Config) error {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinItems {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return f(i)
		})
	}
	return g.Wait()
}
