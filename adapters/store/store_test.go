package store

import (
	"context"
	"math"
	"testing"
	"time"

	"sherockets/domain/core"
	"sherockets/domain/effects"
	"sherockets/domain/run"
	"sherockets/internal"
	apperrors "sherockets/internal/errors"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, NewMigrator(db, internal.Discard()).Up(context.Background()))
	return db
}

func sampleRun(id string, created time.Time, study string) *run.Run {
	m := run.Manifest{
		Study:           study,
		Dataset:         core.DatasetHash("d41d8cd98f00"),
		TaskCount:       8,
		Scheme:          "dummy",
		Method:          "bootstrap",
		Policy:          "lowest-share",
		References:      map[string]string{"Tutor": "male_tutor"},
		Iterations:      200,
		Seed:            42,
		MaxIterations:   100,
		Tolerance:       1e-8,
		MinObservations: 1,
		ExcludeBalanced: true,
	}
	m.Seal()
	return &run.Run{
		ID:         core.RunID(id),
		CreatedAt:  created,
		Manifest:   m,
		ChoiceSets: 1200,
		Fit: effects.FitSummary{
			Observations:  1200,
			Parameters:    10,
			Iterations:    6,
			LogLikelihood: -700.5,
			NullLogLik:    -831.8,
			PseudoR2:      0.158,
			GradientNorm:  1e-10,
		},
		Resampling: &effects.ResamplingSummary{Method: effects.MethodBootstrap, Requested: 200, Succeeded: 198, Failed: 2, Seed: 42},
		Estimates: []effects.EffectEstimate{
			{
				Attribute: "Tutor", Level: "female_tutor", LevelLabel: "Female tutor",
				Coefficient: 0.41, StdError: 0.07, CI: effects.Interval{Lower: 0.27, Upper: 0.55},
				PValue: 0.004, AME: 9.8, Tier: effects.TierP01, Status: effects.StatusIncluded,
				Method: effects.MethodBootstrap, Count: 1210,
			},
			effects.Placeholder("Tutor", "male_tutor", "Male tutor", effects.StatusReference, effects.ReasonReference, effects.MethodBootstrap, 1190),
			{
				Attribute: "Pricing", Level: "pricing_9_99", LevelLabel: "$9.99",
				Coefficient: 0.1, StdError: math.NaN(), CI: effects.Interval{Lower: math.NaN(), Upper: math.NaN()},
				PValue: 0.5, Tier: effects.TierNS, Status: effects.StatusIncluded,
				Method: effects.MethodBootstrap, Count: 3, Warnings: []string{"level pricing_9_99 observed 3 times (minimum 5)"},
			},
		},
		Warnings: []string{"2 of 200 bootstrap refits failed and were dropped", "second warning"},
	}
}

func TestMigrator_Idempotent(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, internal.Discard())

	require.NoError(t, m.Up(context.Background()))
	status, err := m.Status(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, s := range status {
		assert.True(t, s.Applied, "migration %s should be applied", s.Version)
	}
	assert.Equal(t, "001", status[0].Version)
	assert.Equal(t, "runs", status[0].Name)
}

func TestRunRepository_SaveGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := sampleRun("0195a7c2-0000-7000-8000-000000000001", created, "ai_tutor")
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Get(ctx, want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v, want %v", got.CreatedAt, created)
	assert.Equal(t, want.Manifest, got.Manifest)
	assert.NoError(t, got.Manifest.Validate())
	assert.Equal(t, want.ChoiceSets, got.ChoiceSets)
	assert.Equal(t, want.Fit, got.Fit)
	assert.Equal(t, want.Resampling, got.Resampling)
	assert.Equal(t, want.Warnings, got.Warnings)

	require.Len(t, got.Estimates, 3)
	assert.Equal(t, want.Estimates[0], got.Estimates[0])
	assert.Equal(t, want.Estimates[1], got.Estimates[1])

	third := got.Estimates[2]
	assert.Equal(t, "pricing_9_99", third.Level)
	assert.True(t, math.IsNaN(third.StdError), "NaN std error should round-trip through NULL")
	assert.True(t, math.IsNaN(third.CI.Lower))
	assert.Equal(t, want.Estimates[2].Warnings, third.Warnings)
}

func TestRunRepository_GetMissing(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	_, err := repo.Get(context.Background(), core.RunID("nope"))
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestRunRepository_DuplicateID(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	ctx := context.Background()
	r := sampleRun("dup", time.Now().UTC(), "ai_tutor")

	require.NoError(t, repo.Save(ctx, r))
	err := repo.Save(ctx, r)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
}

func TestRunRepository_List(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sampleRun("run-a", base, "ai_tutor")))
	require.NoError(t, repo.Save(ctx, sampleRun("run-b", base.Add(time.Hour), "ai_tutor")))
	require.NoError(t, repo.Save(ctx, sampleRun("run-c", base.Add(2*time.Hour), "other")))

	all, err := repo.List(ctx, run.Filters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.RunID("run-c"), all[0].ID, "newest first")
	assert.Equal(t, core.RunID("run-a"), all[2].ID)
	assert.Equal(t, 1200, all[0].ChoiceSets)
	assert.InDelta(t, 0.158, all[0].PseudoR2, 1e-12)

	tutor, err := repo.List(ctx, run.Filters{Study: "ai_tutor"})
	require.NoError(t, err)
	require.Len(t, tutor, 2)
	assert.Equal(t, core.RunID("run-b"), tutor[0].ID)

	page, err := repo.List(ctx, run.Filters{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, core.RunID("run-b"), page[0].ID)
}

func TestRunRepository_SaveRequiresID(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	err := repo.Save(context.Background(), &run.Run{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))

	_, err = Open(DriverPostgres, "")
	require.Error(t, err)
}
