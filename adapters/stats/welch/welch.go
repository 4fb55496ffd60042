package welch

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Result is Welch's unequal-variance t-test between two samples
type Result struct {
	N1, N2       int
	Mean1, Mean2 float64
	T            float64
	DF           float64
	PValue       float64
	CohensD      float64 // pooled-SD standardized mean difference
	Skipped      string  // why the test was not run, empty when it was
}

const (
	SkipTooFew     = "fewer than two values in a sample"
	SkipNoVariance = "zero variance in both samples"
)

// Test compares the means of two samples. With fewer than two values in either sample
// or zero variance in both, it returns ok = false, p = NaN and the reason in Skipped.
func Test(group1, group2 []float64) (Result, bool) {
	r := Result{N1: len(group1), N2: len(group2), T: math.NaN(), DF: math.NaN(), PValue: math.NaN()}
	if r.N1 < 2 || r.N2 < 2 {
		r.Skipped = SkipTooFew
		return r, false
	}
	n1, n2 := float64(r.N1), float64(r.N2)

	mean1, var1 := stat.MeanVariance(group1, nil)
	mean2, var2 := stat.MeanVariance(group2, nil)
	r.Mean1, r.Mean2 = mean1, mean2

	se2 := var1/n1 + var2/n2
	if se2 == 0 {
		r.Skipped = SkipNoVariance
		return r, false
	}
	r.T = (mean1 - mean2) / math.Sqrt(se2)

	// Welch-Satterthwaite
	r.DF = se2 * se2 / (math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1))

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: r.DF}
	r.PValue = math.Min(1, 2*t.CDF(-math.Abs(r.T)))

	if pooled := math.Sqrt(((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2)); pooled > 0 {
		r.CohensD = (mean1 - mean2) / pooled
	}
	return r, true
}
