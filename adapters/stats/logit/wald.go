package logit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"sherockets/domain/effects"
)

// z975 is the two-sided 95% normal critical value
var z975 = distuv.UnitNormal.Quantile(0.975)

// WaldTest is the asymptotic test of one coefficient against zero
type WaldTest struct {
	Z      float64
	PValue float64
	CI     effects.Interval
}

// Wald tests every coefficient using the inverse-information standard errors
func (f *Fit) Wald() []WaldTest {
	out := make([]WaldTest, len(f.Coefficients))
	for j, b := range f.Coefficients {
		out[j] = wald(b, f.StdErrors[j])
	}
	return out
}

func wald(beta, se float64) WaldTest {
	if se <= 0 || math.IsNaN(se) || math.IsInf(se, 0) {
		return WaldTest{Z: math.NaN(), PValue: math.NaN(), CI: effects.Interval{Lower: math.NaN(), Upper: math.NaN()}}
	}
	z := beta / se
	return WaldTest{
		Z:      z,
		PValue: math.Min(1, 2*distuv.UnitNormal.CDF(-math.Abs(z))),
		CI:     effects.Interval{Lower: beta - z975*se, Upper: beta + z975*se},
	}
}
