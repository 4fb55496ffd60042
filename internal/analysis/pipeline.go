package analysis

import (
	"context"
	"fmt"
	"time"

	"sherockets/adapters/battery"
	"sherockets/adapters/stats/logit"
	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/effects"
	"sherockets/domain/study"
	"sherockets/internal"
	"sherockets/internal/coding"
)

// DefaultResamplingIterations is the bootstrap/permutation replicate count
const DefaultResamplingIterations = 1000

// Options selects coding, references and the single significance method of a run
type Options struct {
	Scheme     coding.Scheme
	Policy     coding.ReferencePolicy
	Method     effects.Method
	Iterations int // bootstrap or permutation replicates
	Workers    int
	Seed       int64
	Design     coding.DesignOptions
	Progress   func(done, total int)
}

// DefaultOptions is dummy coding, lowest-share references and Wald p-values
func DefaultOptions() Options {
	return Options{
		Scheme:     coding.SchemeDummy,
		Policy:     coding.LowestShare{},
		Method:     effects.MethodWald,
		Iterations: DefaultResamplingIterations,
		Seed:       42,
		Design:     coding.DefaultDesignOptions(),
	}
}

// Report is everything a downstream writer needs; it never has to re-derive effects
type Report struct {
	RunID      core.RunID                 `json:"run_id"`
	Study      string                     `json:"study"`
	Dataset    core.DatasetHash           `json:"dataset_hash,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
	Scheme     coding.Scheme              `json:"coding_scheme"`
	Method     effects.Method             `json:"significance_method"`
	Policy     coding.PolicyKind          `json:"reference_policy"`
	References map[string]string          `json:"reference_levels"`
	ChoiceSets int                        `json:"choice_sets"`
	Estimates  []effects.EffectEstimate   `json:"estimates"`
	Fit        effects.FitSummary         `json:"fit"`
	Resampling *effects.ResamplingSummary `json:"resampling,omitempty"`
	Warnings   []string                   `json:"warnings,omitempty"`
}

// Estimate returns the record for a level code
func (r *Report) Estimate(level string) (effects.EffectEstimate, bool) {
	for _, e := range r.Estimates {
		if e.Level == level {
			return e, true
		}
	}
	return effects.EffectEstimate{}, false
}

// Pipeline runs references -> coding -> screening -> fit -> significance -> assembly
type Pipeline struct {
	estimator *logit.Estimator
	resampler *battery.Resampler
	logger    *internal.Logger
}

// NewPipeline wires the estimator and resampler. resampler may be nil for Wald-only use.
func NewPipeline(estimator *logit.Estimator, resampler *battery.Resampler, logger *internal.Logger) *Pipeline {
	return &Pipeline{
		estimator: estimator,
		resampler: resampler,
		logger:    internal.OrDefault(logger).With("analysis"),
	}
}

// Estimate fits the choice model on sets and assembles one record per study level
func (p *Pipeline) Estimate(ctx context.Context, s *study.Study, sets []choice.ChoiceSet, opts Options) (*Report, error) {
	if opts.Policy == nil {
		opts.Policy = coding.LowestShare{}
	}
	if opts.Method == "" {
		opts.Method = effects.MethodWald
	}
	if !opts.Method.Valid() {
		return nil, fmt.Errorf("unknown significance method %q", opts.Method)
	}
	scheme, err := coding.ParseScheme(string(opts.Scheme))
	if err != nil {
		return nil, err
	}

	refs, err := opts.Policy.References(s, sets)
	if err != nil {
		return nil, err
	}
	coder, err := coding.NewCoder(s, scheme, refs)
	if err != nil {
		return nil, err
	}
	design, err := coding.BuildDesign(s, coder, sets, opts.Design, p.logger)
	if err != nil {
		return nil, err
	}

	fit, err := p.estimator.Fit(design.X, design.Y, design.Names())
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      core.NewRunID(),
		Study:      s.Name,
		CreatedAt:  time.Now().UTC(),
		Scheme:     scheme,
		Method:     opts.Method,
		Policy:     opts.Policy.Kind(),
		References: refs,
		ChoiceSets: len(sets),
		Fit: effects.FitSummary{
			Observations:   design.Rows(),
			Parameters:     len(design.Columns),
			Iterations:     fit.Iterations,
			LogLikelihood:  fit.LogLikelihood,
			NullLogLik:     fit.NullLogLik,
			PseudoR2:       fit.PseudoR2(),
			GradientNorm:   fit.GradientNorm,
			QuasiSeparated: fit.QuasiSeparated,
		},
	}
	if fit.QuasiSeparated {
		report.Warnings = append(report.Warnings, "quasi-complete separation: some fitted probabilities are within 1e-6 of 0 or 1; standard errors are inflated")
		p.logger.Warn("quasi-complete separation detected (%d rows)", design.Rows())
	}

	sig, err := p.significance(ctx, design, fit, opts)
	if err != nil {
		return nil, err
	}
	if sig.summary != nil {
		report.Resampling = sig.summary
		if sig.summary.Failed > 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%d of %d %s refits failed and were dropped", sig.summary.Failed, sig.summary.Requested, opts.Method))
		}
	}

	ame := fit.AME()
	for _, ls := range design.Levels {
		var est effects.EffectEstimate
		if ls.Status == effects.StatusIncluded {
			j := ls.Column
			est = effects.EffectEstimate{
				Attribute:   ls.Ref.Attribute,
				Level:       ls.Ref.Level.Code,
				LevelLabel:  ls.Ref.Level.Label,
				Coefficient: fit.Coefficients[j],
				StdError:    sig.stdErrors[j],
				CI:          sig.intervals[j],
				PValue:      sig.pValues[j],
				AME:         ame[j],
				Tier:        effects.TierFor(sig.pValues[j]),
				Status:      effects.StatusIncluded,
				Method:      opts.Method,
				Count:       ls.Count,
			}
		} else {
			est = effects.Placeholder(ls.Ref.Attribute, ls.Ref.Level.Code, ls.Ref.Level.Label, ls.Status, ls.Reason, opts.Method, ls.Count)
		}
		if ls.Warning != nil {
			est.Warnings = append(est.Warnings, ls.Warning.Error())
			report.Warnings = append(report.Warnings, ls.Warning.Error())
		}
		report.Estimates = append(report.Estimates, est)
	}

	p.logger.Info("fitted %d columns on %d choice sets in %d iterations (method %s, scheme %s)",
		len(design.Columns), design.Rows(), fit.Iterations, opts.Method, scheme)
	return report, nil
}

type significance struct {
	pValues   []float64
	stdErrors []float64
	intervals []effects.Interval
	summary   *effects.ResamplingSummary
}

// significance computes p-values with exactly one method. Bootstrap also supplies the
// standard errors and percentile intervals; otherwise they come from the information matrix.
func (p *Pipeline) significance(ctx context.Context, design *coding.Design, fit *logit.Fit, opts Options) (significance, error) {
	wald := fit.Wald()
	sig := significance{
		pValues:   make([]float64, len(wald)),
		stdErrors: append([]float64(nil), fit.StdErrors...),
		intervals: make([]effects.Interval, len(wald)),
	}
	for j, w := range wald {
		sig.pValues[j] = w.PValue
		sig.intervals[j] = w.CI
	}
	if opts.Method == effects.MethodWald {
		return sig, nil
	}

	if p.resampler == nil {
		return sig, fmt.Errorf("%s significance requested without a resampler", opts.Method)
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultResamplingIterations
	}
	cfg := battery.Config{Iterations: iterations, Workers: opts.Workers, Seed: opts.Seed, Progress: opts.Progress}

	var (
		res *battery.Result
		err error
	)
	switch opts.Method {
	case effects.MethodBootstrap:
		res, err = p.resampler.Bootstrap(ctx, design.X, design.Y, cfg)
	case effects.MethodPermutation:
		res, err = p.resampler.Permutation(ctx, design.X, design.Y, fit.Coefficients, cfg)
	}
	if err != nil {
		return sig, err
	}
	sig.pValues = res.PValues
	if res.StdErrors != nil {
		sig.stdErrors = res.StdErrors
		sig.intervals = res.CI
	}
	sig.summary = &res.Summary
	return sig, nil
}
