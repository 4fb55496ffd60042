package battery

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"sherockets/domain/effects"
)

// Permutation shuffles the outcomes to break any link with the design and refits.
// p_j = (#|b_null| ≥ |b_obs| + 1)/(P+1) over the P shuffles that converged.
func (r *Resampler) Permutation(ctx context.Context, X *mat.Dense, y []float64, observed []float64, cfg Config) (*Result, error) {
	_, k := X.Dims()
	if len(observed) != k {
		return nil, fmt.Errorf("observed coefficients have length %d, design has %d columns", len(observed), k)
	}
	replicates, failures, err := r.run(ctx, "permutation", X, cfg, func(rng *rand.Rand) (mat.Matrix, []float64) {
		shuffled := make([]float64, len(y))
		copy(shuffled, y)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return X, shuffled
	})
	if err != nil {
		return nil, err
	}

	summary, first := summarize(effects.MethodPermutation, cfg, replicates, failures)
	if summary.Failed > 0 {
		r.logger.Warn("%d of %d permutation refits failed (first: %v)", summary.Failed, summary.Requested, first)
	}
	if summary.Succeeded == 0 {
		return nil, allFailed(effects.MethodPermutation, summary, first)
	}

	res := &Result{
		Method:     effects.MethodPermutation,
		PValues:    make([]float64, k),
		Replicates: replicates,
		Summary:    summary,
		FirstError: first,
	}
	for j := 0; j < k; j++ {
		draws := successful(replicates, j)
		extreme := 0
		for _, b := range draws {
			if math.Abs(b) >= math.Abs(observed[j]) {
				extreme++
			}
		}
		res.PValues[j] = float64(extreme+1) / float64(len(draws)+1)
	}
	return res, nil
}
