package battery

import (
	"context"
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"sherockets/domain/effects"
)

// Bootstrap resamples rows of (X, y) with replacement and refits. The p-value is the
// two-tailed tail probability of the replicate distribution relative to zero:
// min(1, 2·(min(#b≤0, #b≥0)+1)/(B+1)) over the B replicates that converged.
func (r *Resampler) Bootstrap(ctx context.Context, X *mat.Dense, y []float64, cfg Config) (*Result, error) {
	n, k := X.Dims()
	replicates, failures, err := r.run(ctx, "bootstrap", X, cfg, func(rng *rand.Rand) (mat.Matrix, []float64) {
		Xb := mat.NewDense(n, k, nil)
		yb := make([]float64, n)
		for i := 0; i < n; i++ {
			src := rng.Intn(n)
			Xb.SetRow(i, X.RawRowView(src))
			yb[i] = y[src]
		}
		return Xb, yb
	})
	if err != nil {
		return nil, err
	}

	summary, first := summarize(effects.MethodBootstrap, cfg, replicates, failures)
	if summary.Failed > 0 {
		r.logger.Warn("%d of %d bootstrap refits failed (first: %v)", summary.Failed, summary.Requested, first)
	}
	if summary.Succeeded == 0 {
		return nil, allFailed(effects.MethodBootstrap, summary, first)
	}

	res := &Result{
		Method:     effects.MethodBootstrap,
		PValues:    make([]float64, k),
		StdErrors:  make([]float64, k),
		CI:         make([]effects.Interval, k),
		Replicates: replicates,
		Summary:    summary,
		FirstError: first,
	}
	for j := 0; j < k; j++ {
		draws := successful(replicates, j)
		res.PValues[j] = bootstrapP(draws)
		res.StdErrors[j] = math.NaN()
		if len(draws) > 1 {
			res.StdErrors[j], _ = stats.StandardDeviationSample(draws)
		}
		lo, _ := stats.Percentile(draws, 2.5)
		hi, _ := stats.Percentile(draws, 97.5)
		res.CI[j] = effects.Interval{Lower: lo, Upper: hi}
	}
	r.logger.Debug("bootstrap: %d/%d replicates, %d columns", summary.Succeeded, summary.Requested, k)
	return res, nil
}

func bootstrapP(draws []float64) float64 {
	var below, above int
	for _, b := range draws {
		if b <= 0 {
			below++
		}
		if b >= 0 {
			above++
		}
	}
	tail := min(below, above)
	return math.Min(1, 2*float64(tail+1)/float64(len(draws)+1))
}
