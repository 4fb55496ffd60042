package app

import (
	"context"
	"fmt"
	"testing"

	"sherockets/adapters/store"
	"sherockets/domain/core"
	"sherockets/domain/dataset"
	"sherockets/domain/effects"
	"sherockets/domain/run"
	"sherockets/domain/study"
	"sherockets/internal"
	"sherockets/internal/config"
	"sherockets/internal/errors"
	"sherockets/internal/testkit"
	"sherockets/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, r *run.Run) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRunRepository) Get(ctx context.Context, id core.RunID) (*run.Run, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*run.Run), args.Error(1)
}

func (m *MockRunRepository) List(ctx context.Context, filters run.Filters) ([]run.Summary, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]run.Summary), args.Error(1)
}

func generatedTable(t *testing.T, respondents int) *dataset.Table {
	t.Helper()
	cfg := testkit.DefaultSurveyConfig()
	cfg.Respondents = respondents
	return testkit.NewSurveyGenerator(study.AITutorStudy(), cfg).Generate()
}

func newService(t *testing.T, withStore bool) *AnalysisService {
	t.Helper()
	var runs ports.RunRepository
	if withStore {
		db, err := store.Open(store.DriverSQLite, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, store.NewMigrator(db, internal.Discard()).Up(context.Background()))
		runs = store.NewRunRepository(db)
	}
	svc, err := NewAnalysisService(config.Default(), runs, internal.Discard())
	require.NoError(t, err)
	return svc
}

func TestAnalysisService_EstimateAndPersist(t *testing.T) {
	svc := newService(t, true)
	ctx := context.Background()
	table := generatedTable(t, 150)

	res, err := svc.Estimate(ctx, EstimateRequest{Table: table, Persist: true})
	require.NoError(t, err)

	report := res.Report
	assert.Equal(t, 150*8, report.ChoiceSets)
	assert.Len(t, res.Sets, 150*8)
	assert.Len(t, report.Estimates, 17, "one record per study level")
	assert.Equal(t, table.Hash(), report.Dataset)
	assert.Equal(t, effects.MethodWald, report.Method)

	school, ok := report.Estimate("school_pays")
	require.True(t, ok)
	if school.Status == effects.StatusIncluded {
		assert.Greater(t, school.Coefficient, 0.0)
	}

	require.NotNil(t, res.Run)
	assert.NoError(t, res.Run.Manifest.Validate())

	stored, err := svc.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, stored.ID)
	assert.Equal(t, report.Dataset, stored.Manifest.Dataset)
	require.Len(t, stored.Estimates, len(report.Estimates))
	for i := range report.Estimates {
		assert.Equal(t, report.Estimates[i].Level, stored.Estimates[i].Level)
		assert.InDelta(t, report.Estimates[i].Coefficient, stored.Estimates[i].Coefficient, 1e-12)
	}

	list, err := svc.ListRuns(ctx, run.Filters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, report.RunID, list[0].ID)
}

func TestAnalysisService_Overrides(t *testing.T) {
	svc := newService(t, false)
	table := generatedTable(t, 60)
	seed := int64(7)

	res, err := svc.Estimate(context.Background(), EstimateRequest{
		Table:     table,
		Overrides: Overrides{Scheme: "effects", Method: "bootstrap", Iterations: 20, Seed: &seed, Workers: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, effects.MethodBootstrap, res.Report.Method)
	require.NotNil(t, res.Report.Resampling)
	assert.Equal(t, 20, res.Report.Resampling.Requested)
	assert.Equal(t, int64(7), res.Report.Resampling.Seed)
	assert.Nil(t, res.Run, "nothing persisted without a store")

	_, err = svc.Estimate(context.Background(), EstimateRequest{Table: table, Overrides: Overrides{Method: "jackknife"}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = svc.Estimate(context.Background(), EstimateRequest{Table: table, Overrides: Overrides{Scheme: "helmert"}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestAnalysisService_MalformedExport(t *testing.T) {
	svc := newService(t, false)

	missing := testkit.TableFromRecords(dataset.RawRowData{"A_Tutor1": "Female tutor"})
	_, err := svc.Estimate(context.Background(), EstimateRequest{Table: missing})
	require.Error(t, err)
	assert.True(t, core.IsInputError(err))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	table := generatedTable(t, 3)
	table.Rows[1].Cells["Task2_choice"] = "NaN"
	_, err = svc.Estimate(context.Background(), EstimateRequest{Table: table})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidChoice)
}

func TestAnalysisService_Subgroups(t *testing.T) {
	svc := newService(t, false)
	table := generatedTable(t, 150)

	results, err := svc.Subgroups(context.Background(), table, Overrides{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	total := 0
	for _, r := range results {
		total += r.ChoiceSets
		if r.Skipped == "" {
			assert.NotNil(t, r.Report, r.Group)
		}
	}
	assert.Equal(t, 150*8, total)

	noGroup := testkit.TableFromRecords(dataset.RawRowData{"A_Tutor1": "Female tutor"})
	_, err = svc.Subgroups(context.Background(), noGroup, Overrides{})
	assert.Error(t, err)
}

func TestAnalysisService_NoStore(t *testing.T) {
	svc := newService(t, false)
	assert.False(t, svc.Persistent())

	_, err := svc.GetRun(context.Background(), core.RunID("x"))
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))

	list, err := svc.ListRuns(context.Background(), run.Filters{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAnalysisService_SaveFailure(t *testing.T) {
	runs := &MockRunRepository{}
	runs.On("Save", mock.Anything, mock.AnythingOfType("*run.Run")).
		Return(errors.DatabaseError("failed to insert run", fmt.Errorf("disk full")))
	runs.On("Get", mock.Anything, core.RunID("missing")).
		Return((*run.Run)(nil), core.NewNotFoundError("run", "missing"))

	svc, err := NewAnalysisService(config.Default(), runs, internal.Discard())
	require.NoError(t, err)
	assert.True(t, svc.Persistent())

	_, err = svc.Estimate(context.Background(), EstimateRequest{Table: generatedTable(t, 40), Persist: true})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))

	_, err = svc.GetRun(context.Background(), core.RunID("missing"))
	assert.True(t, core.IsNotFoundError(err))

	runs.AssertExpectations(t)
	runs.AssertNumberOfCalls(t, "Save", 1)
}
