package logit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"sherockets/domain/core"
	"sherockets/internal/linalg"
)

const (
	// DefaultMaxIterations bounds the Newton loop
	DefaultMaxIterations = 100
	// DefaultTolerance is the max-abs score at which the fit is considered converged
	DefaultTolerance = 1e-8

	// separationEpsilon flags fitted probabilities this close to 0 or 1
	separationEpsilon = 1e-6
	maxStepHalvings   = 30
)

// Options controls the Newton-Raphson solver
type Options struct {
	MaxIterations int
	Tolerance     float64
}

// DefaultOptions returns the solver defaults
func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

// Estimator fits a binary logit without intercept: P(y=1) = 1/(1+exp(-x·β)).
// It holds no state between fits and is safe for concurrent use.
type Estimator struct {
	opts Options
}

// New creates an estimator, filling zero options with defaults
func New(opts Options) *Estimator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	return &Estimator{opts: opts}
}

// Options returns the effective solver options
func (e *Estimator) Options() Options {
	return e.opts
}

// Fit is a converged maximum-likelihood solution
type Fit struct {
	Names          []string
	Coefficients   []float64
	StdErrors      []float64
	Covariance     *mat.SymDense // inverse observed information (XᵀWX)⁻¹
	Fitted         []float64     // p̂ per row
	Iterations     int
	LogLikelihood  float64
	NullLogLik     float64
	GradientNorm   float64
	QuasiSeparated bool
}

// Fit estimates β for design X (rows = observations) and outcomes y ∈ {0,1}.
// names label the columns in error messages and may be nil.
func (e *Estimator) Fit(X mat.Matrix, y []float64, names []string) (*Fit, error) {
	n, k := X.Dims()
	if n == 0 || k == 0 {
		return nil, fmt.Errorf("empty design matrix (%dx%d)", n, k)
	}
	if len(y) != n {
		return nil, fmt.Errorf("outcome length %d does not match %d design rows", len(y), n)
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("outcome %d is %v, want 0 or 1", i, v)
		}
	}
	names = columnNames(names, k)

	if rank := linalg.Rank(X); rank < k {
		return nil, &core.RankDeficiencyError{Columns: names, Rank: rank, Rows: n}
	}

	beta := mat.NewVecDense(k, nil)
	p, ll := evaluate(X, y, beta)
	step := mat.NewVecDense(k, nil)
	candidate := mat.NewVecDense(k, nil)

	var (
		chol       mat.Cholesky
		iterations int
		gnorm      float64
	)
	for iter := 0; ; iter++ {
		grad := score(X, y, p)
		gnorm = maxAbs(grad)
		if gnorm < e.opts.Tolerance {
			iterations = iter
			break
		}
		if iter == e.opts.MaxIterations {
			return nil, &core.NonConvergenceError{Iterations: iter, GradientNorm: gnorm}
		}

		if !chol.Factorize(information(X, p)) {
			if iter == 0 {
				return nil, &core.RankDeficiencyError{Columns: names, Rank: k - 1, Rows: n}
			}
			return nil, &core.NonConvergenceError{Iterations: iter, GradientNorm: gnorm, Reason: "information matrix not positive definite"}
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return nil, &core.NonConvergenceError{Iterations: iter, GradientNorm: gnorm, Reason: err.Error()}
		}

		// Newton step with halving until the likelihood does not drop
		var nextP []float64
		var nextLL float64
		for h := 0; ; h++ {
			candidate.AddVec(beta, step)
			nextP, nextLL = evaluate(X, y, candidate)
			if nextLL >= ll-1e-12*(1+math.Abs(ll)) || h == maxStepHalvings {
				break
			}
			step.ScaleVec(0.5, step)
		}
		beta.CopyVec(candidate)
		p, ll = nextP, nextLL
	}

	var chol2 mat.Cholesky
	if !chol2.Factorize(information(X, p)) {
		return nil, &core.NonConvergenceError{Iterations: iterations, GradientNorm: gnorm, Reason: "singular information matrix at optimum"}
	}
	cov := mat.NewSymDense(k, nil)
	if err := chol2.InverseTo(cov); err != nil {
		return nil, &core.NonConvergenceError{Iterations: iterations, GradientNorm: gnorm, Reason: err.Error()}
	}

	fit := &Fit{
		Names:         names,
		Coefficients:  make([]float64, k),
		StdErrors:     make([]float64, k),
		Covariance:    cov,
		Fitted:        p,
		Iterations:    iterations,
		LogLikelihood: ll,
		NullLogLik:    float64(n) * math.Log(0.5),
		GradientNorm:  gnorm,
	}
	for j := 0; j < k; j++ {
		fit.Coefficients[j] = beta.AtVec(j)
		fit.StdErrors[j] = math.Sqrt(cov.At(j, j))
	}
	for _, pi := range p {
		if pi < separationEpsilon || pi > 1-separationEpsilon {
			fit.QuasiSeparated = true
			break
		}
	}
	return fit, nil
}

// PseudoR2 is McFadden's 1 - LL/LL0
func (f *Fit) PseudoR2() float64 {
	if f.NullLogLik == 0 {
		return 0
	}
	return 1 - f.LogLikelihood/f.NullLogLik
}

// MeanSlope is mean_i p̂ᵢ(1-p̂ᵢ), the derivative of the logistic averaged over the sample
func (f *Fit) MeanSlope() float64 {
	if len(f.Fitted) == 0 {
		return 0
	}
	var sum float64
	for _, p := range f.Fitted {
		sum += p * (1 - p)
	}
	return sum / float64(len(f.Fitted))
}

// AME returns average marginal effects in percentage points, one per column
func (f *Fit) AME() []float64 {
	slope := f.MeanSlope()
	out := make([]float64, len(f.Coefficients))
	for j, b := range f.Coefficients {
		out[j] = slope * b * 100
	}
	return out
}

// evaluate returns fitted probabilities and the log-likelihood at beta
func evaluate(X mat.Matrix, y []float64, beta *mat.VecDense) ([]float64, float64) {
	n, _ := X.Dims()
	var eta mat.VecDense
	eta.MulVec(X, beta)
	p := make([]float64, n)
	var ll float64
	for i := 0; i < n; i++ {
		z := eta.AtVec(i)
		p[i] = sigmoid(z)
		ll += y[i]*z - softplus(z)
	}
	return p, ll
}

// score is the log-likelihood gradient Xᵀ(y - p)
func score(X mat.Matrix, y, p []float64) *mat.VecDense {
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - p[i]
	}
	var g mat.VecDense
	g.MulVec(X.T(), mat.NewVecDense(len(resid), resid))
	return &g
}

// information is the observed Fisher information XᵀWX with W = diag(p(1-p))
func information(X mat.Matrix, p []float64) *mat.SymDense {
	xw := mat.DenseCopyOf(X)
	n, _ := xw.Dims()
	for i := 0; i < n; i++ {
		w := math.Sqrt(p[i] * (1 - p[i]))
		row := xw.RawRowView(i)
		for j := range row {
			row[j] *= w
		}
	}
	var h mat.SymDense
	h.SymOuterK(1, xw.T())
	return &h
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

// softplus is log(1+e^z) without overflow
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func maxAbs(v mat.Vector) float64 {
	var m float64
	for i := 0; i < v.Len(); i++ {
		m = math.Max(m, math.Abs(v.AtVec(i)))
	}
	return m
}

func columnNames(names []string, k int) []string {
	if len(names) == k {
		return names
	}
	out := make([]string, k)
	for j := range out {
		out[j] = fmt.Sprintf("x%d", j+1)
	}
	return out
}
