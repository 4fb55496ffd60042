package battery

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"sherockets/adapters/stats/logit"
	"sherockets/domain/core"
	"sherockets/domain/effects"
	"sherockets/internal"
	"sherockets/ports"
)

// Refitter is the estimator as seen by resampling
type Refitter interface {
	Fit(X mat.Matrix, y []float64, names []string) (*logit.Fit, error)
}

// Config holds the only knobs a resampling run has
type Config struct {
	Iterations int
	Workers    int // 0 means GOMAXPROCS
	Seed       int64
	// Progress is called after each finished replicate. It must be safe for concurrent use.
	Progress func(done, total int)
}

// Result carries per-column resampling p-values. Slots of failed refits stay nil in Replicates.
type Result struct {
	Method     effects.Method
	PValues    []float64
	StdErrors  []float64          // bootstrap only
	CI         []effects.Interval // bootstrap only
	Replicates [][]float64
	Summary    effects.ResamplingSummary
	FirstError error
}

// Resampler runs bootstrap and permutation refits over a fixed worker pool
type Resampler struct {
	estimator Refitter
	rng       ports.RNGPort
	logger    *internal.Logger
}

// NewResampler creates a resampler. Each replicate draws from its own RNG stream.
func NewResampler(estimator Refitter, rng ports.RNGPort, logger *internal.Logger) *Resampler {
	return &Resampler{
		estimator: estimator,
		rng:       rng,
		logger:    internal.OrDefault(logger).With("battery"),
	}
}

// draw builds one resampled problem from a replicate's RNG
type draw func(rng *rand.Rand) (mat.Matrix, []float64)

// run fits cfg.Iterations replicates concurrently; each writes only its own slot
func (r *Resampler) run(ctx context.Context, name string, X *mat.Dense, cfg Config, next draw) ([][]float64, []error, error) {
	if cfg.Iterations <= 0 {
		return nil, nil, fmt.Errorf("%s needs a positive iteration count, got %d", name, cfg.Iterations)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	_, k := X.Dims()

	replicates := make([][]float64, cfg.Iterations)
	failures := make([]error, cfg.Iterations)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Iterations; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng, err := r.rng.ReplicateStream(gctx, name, cfg.Seed, i)
			if err != nil {
				return err
			}
			Xb, yb := next(rng)
			fit, err := r.estimator.Fit(Xb, yb, nil)
			if err != nil {
				failures[i] = err
			} else if len(fit.Coefficients) == k {
				replicates[i] = fit.Coefficients
			}
			if cfg.Progress != nil {
				cfg.Progress(int(done.Add(1)), cfg.Iterations)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return replicates, failures, nil
}

func summarize(method effects.Method, cfg Config, replicates [][]float64, failures []error) (effects.ResamplingSummary, error) {
	s := effects.ResamplingSummary{Method: method, Requested: cfg.Iterations, Seed: cfg.Seed}
	var first error
	for i, b := range replicates {
		if b != nil {
			s.Succeeded++
			continue
		}
		s.Failed++
		if first == nil {
			first = failures[i]
		}
	}
	return s, first
}

// successful returns column j across the replicates that converged
func successful(replicates [][]float64, j int) []float64 {
	out := make([]float64, 0, len(replicates))
	for _, b := range replicates {
		if b != nil {
			out = append(out, b[j])
		}
	}
	return out
}

func allFailed(method effects.Method, s effects.ResamplingSummary, first error) error {
	return fmt.Errorf("%w: all %d %s replicates failed: %v", core.ErrNonConvergence, s.Requested, method, first)
}
