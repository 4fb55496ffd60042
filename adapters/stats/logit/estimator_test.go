package logit

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"sherockets/domain/core"
)

// simulate draws n rows of k columns in {-1,0,1} and logit outcomes from beta
func simulate(n int, beta []float64, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	k := len(beta)
	X := mat.NewDense(n, k, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		var eta float64
		for j := 0; j < k; j++ {
			v := float64(rng.Intn(3) - 1)
			X.Set(i, j, v)
			eta += v * beta[j]
		}
		if rng.Float64() < sigmoid(eta) {
			y[i] = 1
		}
	}
	return X, y
}

func TestFit_RecoversCoefficients(t *testing.T) {
	truth := []float64{0.8, -0.5, 0.2}
	X, y := simulate(5000, truth, 7)

	fit, err := New(DefaultOptions()).Fit(X, y, []string{"a", "b", "c"})
	require.NoError(t, err)

	for j, b := range truth {
		assert.InDelta(t, b, fit.Coefficients[j], 4*fit.StdErrors[j], "coefficient %d", j)
	}
	assert.Less(t, fit.GradientNorm, DefaultTolerance)
	assert.Greater(t, fit.LogLikelihood, fit.NullLogLik)
	assert.Greater(t, fit.PseudoR2(), 0.0)
	assert.False(t, fit.QuasiSeparated)

	tests := fit.Wald()
	assert.Less(t, tests[0].PValue, 0.001)
	assert.True(t, tests[0].CI.Lower < fit.Coefficients[0] && fit.Coefficients[0] < tests[0].CI.Upper)
}

func TestFit_Deterministic(t *testing.T) {
	X, y := simulate(400, []float64{0.5, -0.3}, 11)
	est := New(DefaultOptions())

	first, err := est.Fit(X, y, nil)
	require.NoError(t, err)
	second, err := est.Fit(X, y, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Coefficients, second.Coefficients)
	assert.Equal(t, first.AME(), second.AME())
	assert.Equal(t, []string{"x1", "x2"}, first.Names)
}

func TestFit_SeparatedScenario(t *testing.T) {
	// difference column of a two-level effects-coded attribute, choices A, B, A, A
	X := mat.NewDense(4, 1, []float64{2, -2, 2, 2})
	y := []float64{1, 0, 1, 1}

	fit, err := New(DefaultOptions()).Fit(X, y, []string{"female_tutor"})
	require.NoError(t, err)

	assert.Greater(t, fit.Coefficients[0], 0.0)
	w := fit.Wald()[0]
	assert.False(t, math.IsNaN(w.PValue))
	assert.Greater(t, w.PValue, 0.0)
	assert.LessOrEqual(t, w.PValue, 1.0)
	assert.True(t, fit.QuasiSeparated)
}

func TestFit_NonConvergence(t *testing.T) {
	X, y := simulate(300, []float64{1.5, -1}, 3)

	_, err := New(Options{MaxIterations: 1, Tolerance: 1e-12}).Fit(X, y, nil)
	require.Error(t, err)

	var nc *core.NonConvergenceError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, 1, nc.Iterations)
	assert.Greater(t, nc.GradientNorm, 0.0)
	assert.True(t, errors.Is(err, core.ErrNonConvergence))
}

func TestFit_RankDeficient(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 2,
		-1, -2,
		1, 2,
		0, 0,
	})
	y := []float64{1, 0, 0, 1}

	_, err := New(DefaultOptions()).Fit(X, y, []string{"a", "b"})
	require.Error(t, err)

	var rd *core.RankDeficiencyError
	require.True(t, errors.As(err, &rd))
	assert.Equal(t, 1, rd.Rank)
	assert.Equal(t, []string{"a", "b"}, rd.Columns)
}

func TestFit_InputValidation(t *testing.T) {
	est := New(DefaultOptions())
	X := mat.NewDense(2, 1, []float64{1, -1})

	_, err := est.Fit(X, []float64{1}, nil)
	assert.Error(t, err)
	_, err = est.Fit(X, []float64{1, 0.5}, nil)
	assert.Error(t, err)
}

func TestAME_UsesMeanSlope(t *testing.T) {
	fit := &Fit{
		Coefficients: []float64{1, -2},
		Fitted:       []float64{0.5, 0.5, 0.8, 0.2},
	}
	slope := (0.25 + 0.25 + 0.16 + 0.16) / 4
	ame := fit.AME()
	assert.InDelta(t, slope*100, ame[0], 1e-12)
	assert.InDelta(t, -2*slope*100, ame[1], 1e-12)
}

func TestWald_KnownValues(t *testing.T) {
	w := wald(1.959964, 1)
	assert.InDelta(t, 0.05, w.PValue, 1e-6)
	assert.InDelta(t, 0, w.CI.Lower, 1e-5)

	nan := wald(1, 0)
	assert.True(t, math.IsNaN(nan.PValue))
}
