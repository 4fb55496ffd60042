package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sherockets/domain/core"
	"sherockets/domain/effects"
	"sherockets/domain/run"
	apperrors "sherockets/internal/errors"
	"sherockets/ports"

	"github.com/jmoiron/sqlx"
)

// DefaultListLimit caps List when no limit is given
const DefaultListLimit = 50

// RunRepositoryImpl implements ports.RunRepository over sqlx. Queries are written with
// ? placeholders and rebound for the connected driver.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository on an open database
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type runRow struct {
	ID             string          `db:"id"`
	CreatedAt      time.Time       `db:"created_at"`
	Study          string          `db:"study"`
	DatasetHash    string          `db:"dataset_hash"`
	Scheme         string          `db:"coding_scheme"`
	Method         string          `db:"significance_method"`
	Fingerprint    string          `db:"fingerprint"`
	ChoiceSets     int             `db:"choice_sets"`
	Observations   int             `db:"observations"`
	Parameters     int             `db:"parameters"`
	Iterations     int             `db:"iterations"`
	LogLikelihood  sql.NullFloat64 `db:"log_likelihood"`
	NullLogLik     sql.NullFloat64 `db:"null_log_likelihood"`
	PseudoR2       sql.NullFloat64 `db:"pseudo_r2"`
	GradientNorm   sql.NullFloat64 `db:"gradient_norm"`
	QuasiSeparated bool            `db:"quasi_separated"`
	Manifest       string          `db:"manifest"`
	Resampling     sql.NullString  `db:"resampling"`
	Warnings       sql.NullString  `db:"warnings"`
}

type estimateRow struct {
	Ordinal     int             `db:"ordinal"`
	Attribute   string          `db:"attribute"`
	Level       string          `db:"level_code"`
	LevelLabel  string          `db:"level_label"`
	Coefficient sql.NullFloat64 `db:"coefficient"`
	StdError    sql.NullFloat64 `db:"std_error"`
	CILower     sql.NullFloat64 `db:"ci_lower"`
	CIUpper     sql.NullFloat64 `db:"ci_upper"`
	PValue      sql.NullFloat64 `db:"p_value"`
	AME         sql.NullFloat64 `db:"ame_pp"`
	Tier        string          `db:"tier"`
	Status      string          `db:"status"`
	Reason      string          `db:"reason"`
	Method      string          `db:"method"`
	Count       int             `db:"level_count"`
	Warnings    sql.NullString  `db:"warnings"`
}

const runColumns = `id, created_at, study, dataset_hash, coding_scheme, significance_method, fingerprint,
	choice_sets, observations, parameters, iterations, log_likelihood, null_log_likelihood,
	pseudo_r2, gradient_norm, quasi_separated, manifest, resampling, warnings`

// Save writes a run and its estimates in one transaction
func (r *RunRepositoryImpl) Save(ctx context.Context, rn *run.Run) error {
	if rn == nil || rn.ID == "" {
		return apperrors.InvalidInput("run id is required")
	}
	manifestJSON, err := json.Marshal(rn.Manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	var resamplingJSON []byte
	if rn.Resampling != nil {
		if resamplingJSON, err = json.Marshal(rn.Resampling); err != nil {
			return fmt.Errorf("failed to encode resampling summary: %w", err)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		string(rn.ID), rn.CreatedAt.UTC(), rn.Manifest.Study, rn.Manifest.Dataset.String(),
		rn.Manifest.Scheme, rn.Manifest.Method, rn.Manifest.Fingerprint.String(),
		rn.ChoiceSets, rn.Fit.Observations, rn.Fit.Parameters, rn.Fit.Iterations,
		nullable(rn.Fit.LogLikelihood), nullable(rn.Fit.NullLogLik), nullable(rn.Fit.PseudoR2),
		nullable(rn.Fit.GradientNorm), rn.Fit.QuasiSeparated, string(manifestJSON),
		nullString(resamplingJSON), joinWarnings(rn.Warnings))
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("failed to save run %s", rn.ID), err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO run_estimates (run_id, ordinal, attribute, level_code, level_label, coefficient,
			std_error, ci_lower, ci_upper, p_value, ame_pp, tier, status, reason, method, level_count, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return apperrors.DatabaseError("failed to prepare estimate insert", err)
	}
	defer stmt.Close()

	for i, e := range rn.Estimates {
		_, err := stmt.ExecContext(ctx, string(rn.ID), i, e.Attribute, e.Level, e.LevelLabel,
			nullable(e.Coefficient), nullable(e.StdError), nullable(e.CI.Lower), nullable(e.CI.Upper),
			nullable(e.PValue), nullable(e.AME), string(e.Tier), string(e.Status), string(e.Reason),
			string(e.Method), e.Count, joinWarnings(e.Warnings))
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to save estimate %s", e.Level), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit run", err)
	}
	return nil
}

// Get loads a run with its estimates in their stored order
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*run.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), string(id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(core.NewNotFoundError("run", string(id)), "run lookup")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to load run %s", id), err)
	}

	var rows []estimateRow
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT ordinal, attribute, level_code, level_label, coefficient, std_error, ci_lower, ci_upper,
			p_value, ame_pp, tier, status, reason, method, level_count, warnings
		FROM run_estimates WHERE run_id = ? ORDER BY ordinal`), string(id))
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to load estimates for run %s", id), err)
	}

	out, err := row.toRun()
	if err != nil {
		return nil, err
	}
	out.Estimates = make([]effects.EffectEstimate, len(rows))
	for i, er := range rows {
		out.Estimates[i] = er.toEstimate()
	}
	return out, nil
}

// List returns run summaries, newest first
func (r *RunRepositoryImpl) List(ctx context.Context, filters run.Filters) ([]run.Summary, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	var args []interface{}
	if filters.Study != "" {
		query += ` WHERE study = ?`
		args = append(args, filters.Study)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}
	out := make([]run.Summary, 0, len(rows))
	for _, row := range rows {
		rn, err := row.toRun()
		if err != nil {
			return nil, err
		}
		out = append(out, rn.Summary())
	}
	return out, nil
}

func (row runRow) toRun() (*run.Run, error) {
	out := &run.Run{
		ID:         core.RunID(row.ID),
		CreatedAt:  row.CreatedAt.UTC(),
		ChoiceSets: row.ChoiceSets,
		Fit: effects.FitSummary{
			Observations:   row.Observations,
			Parameters:     row.Parameters,
			Iterations:     row.Iterations,
			LogLikelihood:  orNaN(row.LogLikelihood),
			NullLogLik:     orNaN(row.NullLogLik),
			PseudoR2:       orNaN(row.PseudoR2),
			GradientNorm:   orNaN(row.GradientNorm),
			QuasiSeparated: row.QuasiSeparated,
		},
		Warnings: splitWarnings(row.Warnings),
	}
	if err := json.Unmarshal([]byte(row.Manifest), &out.Manifest); err != nil {
		return nil, fmt.Errorf("run %s: corrupt manifest: %w", row.ID, err)
	}
	if row.Resampling.Valid && row.Resampling.String != "" {
		out.Resampling = &effects.ResamplingSummary{}
		if err := json.Unmarshal([]byte(row.Resampling.String), out.Resampling); err != nil {
			return nil, fmt.Errorf("run %s: corrupt resampling summary: %w", row.ID, err)
		}
	}
	return out, nil
}

func (er estimateRow) toEstimate() effects.EffectEstimate {
	return effects.EffectEstimate{
		Attribute:   er.Attribute,
		Level:       er.Level,
		LevelLabel:  er.LevelLabel,
		Coefficient: orNaN(er.Coefficient),
		StdError:    orNaN(er.StdError),
		CI:          effects.Interval{Lower: orNaN(er.CILower), Upper: orNaN(er.CIUpper)},
		PValue:      orNaN(er.PValue),
		AME:         orNaN(er.AME),
		Tier:        effects.Tier(er.Tier),
		Status:      effects.Status(er.Status),
		Reason:      effects.ExclusionReason(er.Reason),
		Method:      effects.Method(er.Method),
		Count:       er.Count,
		Warnings:    splitWarnings(er.Warnings),
	}
}

// nullable stores non-finite values as NULL
func nullable(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

const warningSeparator = "\n"

func joinWarnings(w []string) interface{} {
	if len(w) == 0 {
		return nil
	}
	return strings.Join(w, warningSeparator)
}

func splitWarnings(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, warningSeparator)
}
