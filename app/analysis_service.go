package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"sherockets/adapters/battery"
	"sherockets/adapters/rng"
	"sherockets/adapters/stats/logit"
	"sherockets/adapters/survey"
	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/dataset"
	"sherockets/domain/effects"
	"sherockets/domain/run"
	"sherockets/domain/study"
	"sherockets/internal"
	"sherockets/internal/analysis"
	"sherockets/internal/builder"
	"sherockets/internal/coding"
	"sherockets/internal/config"
	"sherockets/internal/errors"
	"sherockets/internal/metrics"
	"sherockets/ports"
)

// AnalysisService runs survey export -> choice sets -> estimation -> optional persistence
type AnalysisService struct {
	config   *config.Config
	study    *study.Study
	builder  *builder.Builder
	pipeline *analysis.Pipeline
	runs     ports.RunRepository
	logger   *internal.Logger
}

// Overrides replaces configured analysis options for a single request; zero values keep the config
type Overrides struct {
	Scheme     string
	Method     string
	Iterations int
	Seed       *int64
	Workers    int
}

// EstimateRequest is one estimation over an already loaded table
type EstimateRequest struct {
	Table     *dataset.Table
	Overrides Overrides
	Persist   bool
	Progress  func(done, total int)
}

// EstimateResult carries the report plus the inputs derived on the way
type EstimateResult struct {
	Report    *analysis.Report   `json:"report"`
	Run       *run.Run           `json:"run,omitempty"`
	Sets      []choice.ChoiceSet `json:"-"`
	RuntimeMs int64              `json:"runtime_ms"`
}

// NewAnalysisService wires the estimator, resampler and builder from configuration.
// runs may be nil, in which case nothing is persisted.
func NewAnalysisService(cfg *config.Config, runs ports.RunRepository, logger *internal.Logger) (*AnalysisService, error) {
	logger = internal.OrDefault(logger)
	s, err := cfg.ResolveStudy()
	if err != nil {
		return nil, err
	}
	b, err := builder.New(s, builder.Options{TaskCount: cfg.Analysis.TaskCount, GroupColumn: cfg.Survey.GroupColumn}, logger)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	est := logit.New(logit.Options{MaxIterations: cfg.Analysis.MaxIterations, Tolerance: cfg.Analysis.Tolerance})
	resampler := battery.NewResampler(est, rng.NewSeededAdapter(), logger)

	return &AnalysisService{
		config:   cfg,
		study:    s,
		builder:  b,
		pipeline: analysis.NewPipeline(est, resampler, logger),
		runs:     runs,
		logger:   logger.With("service"),
	}, nil
}

// Study returns the resolved study
func (s *AnalysisService) Study() *study.Study {
	return s.study
}

// Persistent reports whether runs are stored
func (s *AnalysisService) Persistent() bool {
	return s.runs != nil
}

// LoadSurvey reads the export at path, or the configured survey file when path is empty
func (s *AnalysisService) LoadSurvey(ctx context.Context, path string) (*dataset.Table, error) {
	if path == "" {
		path = s.config.Survey.File
	}
	if path == "" {
		return nil, errors.InvalidInput("no survey file given (set SURVEY_FILE or pass a path)")
	}
	var reader ports.SurveyReader = survey.NewDataReader(s.readerConfig(path), s.logger)
	table, err := reader.Read(ctx)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return table, nil
}

// ReadSurvey parses an uploaded export
func (s *AnalysisService) ReadSurvey(ctx context.Context, src io.Reader, format survey.Format) (*dataset.Table, error) {
	table, err := survey.ReadFrom(ctx, src, format, s.readerConfig(""), s.logger)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return table, nil
}

func (s *AnalysisService) readerConfig(path string) survey.ReaderConfig {
	return survey.ReaderConfig{Path: path, Sheet: s.config.Survey.Sheet, IDColumn: s.config.Survey.IDColumn}
}

// ChoiceSets reshapes the table, failing on the first malformed row
func (s *AnalysisService) ChoiceSets(table *dataset.Table) ([]choice.ChoiceSet, error) {
	if err := s.builder.CheckColumns(table); err != nil {
		return nil, errors.Wrap(err, "survey export is missing required columns")
	}
	sets, err := s.builder.Collect(table)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build choice sets")
	}
	return sets, nil
}

// Options translates configuration plus overrides into pipeline options
func (s *AnalysisService) Options(o Overrides) (analysis.Options, error) {
	a := s.config.Analysis
	opts := analysis.DefaultOptions()

	scheme := a.CodingScheme
	if o.Scheme != "" {
		scheme = o.Scheme
	}
	parsed, err := coding.ParseScheme(scheme)
	if err != nil {
		return opts, errors.WithCode(errors.CodeInvalidInput, err)
	}
	opts.Scheme = parsed

	method := effects.Method(a.SignificanceMethod)
	if o.Method != "" {
		method = effects.Method(o.Method)
	}
	if !method.Valid() {
		return opts, errors.InvalidInput(fmt.Sprintf("unknown significance method %q", method))
	}
	opts.Method = method

	policy, err := coding.NewPolicy(coding.PolicyKind(a.ReferencePolicy), a.ReferenceLevels)
	if err != nil {
		return opts, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	opts.Policy = policy

	opts.Iterations = a.BootstrapIterations
	if o.Iterations > 0 {
		opts.Iterations = o.Iterations
	}
	opts.Seed = a.Seed
	if o.Seed != nil {
		opts.Seed = *o.Seed
	}
	opts.Workers = a.Workers
	if o.Workers > 0 {
		opts.Workers = o.Workers
	}
	opts.Design = coding.DesignOptions{MinObservations: a.MinObservationsPerLevel, ExcludeBalanced: a.ExcludeBalanced}
	return opts, nil
}

// Estimate runs the full pipeline on req.Table and stores the run when asked to
func (s *AnalysisService) Estimate(ctx context.Context, req EstimateRequest) (*EstimateResult, error) {
	start := time.Now()
	opts, err := s.Options(req.Overrides)
	if err != nil {
		return nil, err
	}
	opts.Progress = req.Progress

	sets, err := s.ChoiceSets(req.Table)
	if err != nil {
		return nil, err
	}
	metrics.ChoiceSetsTotal.Add(float64(len(sets)))

	report, err := s.pipeline.Estimate(ctx, s.study, sets, opts)
	metrics.EstimationDurationSeconds.WithLabelValues(string(opts.Method)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EstimationsTotal.WithLabelValues(string(opts.Method), "error").Inc()
		if core.IsEstimationError(err) {
			return nil, errors.EstimationFailed(err)
		}
		return nil, errors.Wrap(err, "estimation failed")
	}
	metrics.EstimationsTotal.WithLabelValues(string(opts.Method), "ok").Inc()
	if report.Resampling != nil && report.Resampling.Failed > 0 {
		metrics.ReplicateFailuresTotal.WithLabelValues(string(opts.Method)).Add(float64(report.Resampling.Failed))
	}
	report.Dataset = req.Table.Hash()

	result := &EstimateResult{Report: report, Sets: sets}
	if req.Persist {
		if s.runs == nil {
			s.logger.Warn("run %s not stored: no database configured", report.RunID)
		} else {
			rn := s.toRun(report, opts)
			if err := s.runs.Save(ctx, rn); err != nil {
				return nil, err
			}
			result.Run = rn
			s.logger.Info("stored run %s (dataset %s)", rn.ID, core.Hash(report.Dataset).Short())
		}
	}
	result.RuntimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// Subgroups refits within each value of the configured group column
func (s *AnalysisService) Subgroups(ctx context.Context, table *dataset.Table, o Overrides) ([]analysis.SubgroupResult, error) {
	if s.config.Survey.GroupColumn == "" {
		return nil, errors.ConfigInvalid("subgroup analysis needs survey.group_column")
	}
	if !table.HasColumn(s.config.Survey.GroupColumn) {
		return nil, errors.InvalidInput(fmt.Sprintf("group column %q not in survey export", s.config.Survey.GroupColumn))
	}
	opts, err := s.Options(o)
	if err != nil {
		return nil, err
	}
	sets, err := s.ChoiceSets(table)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Subgroups(ctx, s.study, sets, opts, s.config.Analysis.MinSubgroupSets)
}

// GetRun loads a stored run
func (s *AnalysisService) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	if s.runs == nil {
		return nil, errors.NotFound(fmt.Sprintf("run %s (no database configured)", id))
	}
	return s.runs.Get(ctx, id)
}

// ListRuns lists stored runs; empty when persistence is disabled
func (s *AnalysisService) ListRuns(ctx context.Context, filters run.Filters) ([]run.Summary, error) {
	if s.runs == nil {
		return []run.Summary{}, nil
	}
	return s.runs.List(ctx, filters)
}

func (s *AnalysisService) toRun(report *analysis.Report, opts analysis.Options) *run.Run {
	a := s.config.Analysis
	m := run.Manifest{
		Study:           report.Study,
		Dataset:         report.Dataset,
		TaskCount:       s.builder.TaskCount(),
		Scheme:          string(report.Scheme),
		Method:          string(report.Method),
		Policy:          string(report.Policy),
		References:      report.References,
		Seed:            opts.Seed,
		MaxIterations:   a.MaxIterations,
		Tolerance:       a.Tolerance,
		MinObservations: opts.Design.MinObservations,
		ExcludeBalanced: opts.Design.ExcludeBalanced,
	}
	if report.Method != effects.MethodWald {
		m.Iterations = opts.Iterations
	}
	m.Seal()
	return &run.Run{
		ID:         report.RunID,
		CreatedAt:  report.CreatedAt,
		Manifest:   m,
		ChoiceSets: report.ChoiceSets,
		Fit:        report.Fit,
		Resampling: report.Resampling,
		Estimates:  report.Estimates,
		Warnings:   report.Warnings,
	}
}
