package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherockets/adapters/battery"
	"sherockets/adapters/rng"
	"sherockets/adapters/stats/logit"
	"sherockets/domain/choice"
	"sherockets/domain/dataset"
	"sherockets/domain/effects"
	"sherockets/domain/study"
	"sherockets/internal"
	"sherockets/internal/builder"
	"sherockets/internal/coding"
	"sherockets/internal/testkit"
)

// zeroUtility names the level of each attribute the synthetic survey gives utility 0
var zeroUtility = coding.Explicit{
	"Tutor":            "male_tutor",
	"Color_palette":    "tech_colors",
	"Pricing":          "pricing_12_99",
	"Message_success_": "brilliance_message",
	"Message_failure_": "neutral_message",
	"Storytelling":     "no_story",
	"Role_play":        "no_specific_role",
}

func newPipeline() *Pipeline {
	est := logit.New(logit.DefaultOptions())
	return NewPipeline(est, battery.NewResampler(est, rng.NewSeededAdapter(), internal.Discard()), internal.Discard())
}

func syntheticSets(t *testing.T, respondents, tasks int) ([]choice.ChoiceSet, testkit.SurveyGeneratorConfig) {
	t.Helper()
	config := testkit.DefaultSurveyConfig()
	config.Respondents = respondents
	config.Tasks = tasks
	table := testkit.NewSurveyGenerator(study.AITutorStudy(), config).Generate()

	b, err := builder.New(study.AITutorStudy(), builder.Options{TaskCount: tasks, GroupColumn: "Grade"}, internal.Discard())
	require.NoError(t, err)
	sets, err := b.Collect(table)
	require.NoError(t, err)
	return sets, config
}

func TestEstimate_RecoversPartWorths(t *testing.T) {
	sets, config := syntheticSets(t, 150, 8)
	opts := DefaultOptions()
	opts.Policy = zeroUtility
	opts.Design.ExcludeBalanced = false

	report, err := newPipeline().Estimate(context.Background(), study.AITutorStudy(), sets, opts)
	require.NoError(t, err)

	require.Len(t, report.Estimates, 17)
	assert.Equal(t, 1200, report.ChoiceSets)
	assert.Equal(t, coding.PolicyExplicit, report.Policy)
	assert.Equal(t, 10, report.Fit.Parameters)
	assert.Nil(t, report.Resampling)

	for _, e := range report.Estimates {
		assert.Equal(t, effects.MethodWald, e.Method)
		if e.Status == effects.StatusReference {
			assert.Equal(t, zeroUtility[e.Attribute], e.Level)
			assert.Zero(t, e.Coefficient)
			assert.Equal(t, 1.0, e.PValue)
			assert.Equal(t, effects.TierExcluded, e.Tier)
			continue
		}
		require.Equal(t, effects.StatusIncluded, e.Status, e.Level)
		tolerance := 0.35
		if e.Attribute == "Pricing" {
			tolerance = 0.6
		}
		assert.InDelta(t, config.PartWorths[e.Level], e.Coefficient, tolerance, e.Level)
		assert.Equal(t, math.Signbit(e.Coefficient), math.Signbit(e.AME), "AME shares the coefficient sign")
		assert.True(t, e.CI.Lower < e.Coefficient && e.Coefficient < e.CI.Upper)
	}

	school, ok := report.Estimate("school_pays")
	require.True(t, ok)
	assert.Equal(t, effects.TierP001, school.Tier)
	assert.Greater(t, report.Fit.PseudoR2, 0.0)
}

func TestEstimate_StudyOrder(t *testing.T) {
	sets, _ := syntheticSets(t, 60, 4)
	report, err := newPipeline().Estimate(context.Background(), study.AITutorStudy(), sets, DefaultOptions())
	require.NoError(t, err)

	var got []string
	for _, e := range report.Estimates {
		got = append(got, e.Level)
	}
	var want []string
	for _, ref := range study.AITutorStudy().Levels() {
		want = append(want, ref.Level.Code)
	}
	assert.Equal(t, want, got)
}

func TestEstimate_LowestShareReferences(t *testing.T) {
	s := study.AITutorStudy()
	sets, _ := syntheticSets(t, 80, 6)
	report, err := newPipeline().Estimate(context.Background(), s, sets, DefaultOptions())
	require.NoError(t, err)

	shares := ChoiceShares(s, sets)
	byLevel := map[string]ShareRow{}
	for _, r := range shares.Rows {
		byLevel[r.Level] = r
	}
	for _, attr := range s.Attributes {
		ref := byLevel[report.References[attr.Name]]
		for _, l := range attr.Levels {
			if byLevel[l.Code].Observed {
				assert.LessOrEqual(t, ref.Share, byLevel[l.Code].Share, "%s reference must have the lowest share", attr.Name)
			}
		}
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	sets, _ := syntheticSets(t, 50, 8)
	p := newPipeline()
	first, err := p.Estimate(context.Background(), study.AITutorStudy(), sets, DefaultOptions())
	require.NoError(t, err)
	second, err := p.Estimate(context.Background(), study.AITutorStudy(), sets, DefaultOptions())
	require.NoError(t, err)

	for i := range first.Estimates {
		assert.Equal(t, first.Estimates[i].Coefficient, second.Estimates[i].Coefficient)
		assert.Equal(t, first.Estimates[i].AME, second.Estimates[i].AME)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestEstimate_TutorScenario(t *testing.T) {
	s, err := study.AITutorStudy().Subset([]string{"Tutor"})
	require.NoError(t, err)
	table := testkit.TableFromRecords(
		dataset.RawRowData{
			"A_Tutor1": "Female AI tutor", "B_Tutor1": "Male AI tutor", "Task1_choice": "A",
			"A_Tutor2": "Male AI tutor", "B_Tutor2": "Female AI tutor", "Task2_choice": "B",
		},
		dataset.RawRowData{
			"A_Tutor1": "Female AI tutor", "B_Tutor1": "Male AI tutor", "Task1_choice": "A",
			"A_Tutor2": "Female AI tutor", "B_Tutor2": "Male AI tutor", "Task2_choice": "A",
		},
	)
	b, err := builder.New(s, builder.Options{TaskCount: 2}, internal.Discard())
	require.NoError(t, err)
	sets, err := b.Collect(table)
	require.NoError(t, err)
	require.Len(t, sets, 4)

	opts := DefaultOptions()
	opts.Scheme = coding.SchemeEffects
	report, err := newPipeline().Estimate(context.Background(), s, sets, opts)
	require.NoError(t, err)

	female, ok := report.Estimate("female_tutor")
	require.True(t, ok)
	assert.Greater(t, female.Coefficient, 0.0)
	assert.False(t, math.IsNaN(female.PValue))
	assert.Greater(t, female.PValue, 0.0)
	assert.LessOrEqual(t, female.PValue, 1.0)

	male, ok := report.Estimate("male_tutor")
	require.True(t, ok)
	assert.Equal(t, effects.StatusReference, male.Status)
	assert.True(t, report.Fit.QuasiSeparated)
	assert.NotEmpty(t, report.Warnings)
}

func TestEstimate_Bootstrap(t *testing.T) {
	sets, _ := syntheticSets(t, 60, 8)
	opts := DefaultOptions()
	opts.Method = effects.MethodBootstrap
	opts.Iterations = 60
	opts.Workers = 4

	report, err := newPipeline().Estimate(context.Background(), study.AITutorStudy(), sets, opts)
	require.NoError(t, err)
	require.NotNil(t, report.Resampling)
	assert.Equal(t, 60, report.Resampling.Requested)
	assert.Equal(t, 60, report.Resampling.Succeeded+report.Resampling.Failed)

	for _, e := range report.Estimates {
		assert.Equal(t, effects.MethodBootstrap, e.Method, "one method per run")
		if e.Estimated() {
			assert.Greater(t, e.PValue, 0.0)
			assert.LessOrEqual(t, e.PValue, 1.0)
			assert.LessOrEqual(t, e.CI.Lower, e.CI.Upper)
		}
	}
}

func TestEstimate_Permutation(t *testing.T) {
	sets, _ := syntheticSets(t, 60, 8)
	opts := DefaultOptions()
	opts.Method = effects.MethodPermutation
	opts.Iterations = 30

	report, err := newPipeline().Estimate(context.Background(), study.AITutorStudy(), sets, opts)
	require.NoError(t, err)
	require.NotNil(t, report.Resampling)
	assert.Equal(t, effects.MethodPermutation, report.Resampling.Method)
	for _, e := range report.Estimates {
		if e.Estimated() {
			assert.GreaterOrEqual(t, e.PValue, 1.0/31)
		}
	}
}

func TestEstimate_RejectsUnknownMethod(t *testing.T) {
	sets, _ := syntheticSets(t, 10, 2)
	opts := DefaultOptions()
	opts.Method = "min"
	_, err := newPipeline().Estimate(context.Background(), study.AITutorStudy(), sets, opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Method = effects.MethodBootstrap
	_, err = NewPipeline(logit.New(logit.DefaultOptions()), nil, internal.Discard()).
		Estimate(context.Background(), study.AITutorStudy(), sets, opts)
	assert.Error(t, err)
}

func TestEstimate_InsufficientDataAnnotated(t *testing.T) {
	sets, _ := syntheticSets(t, 30, 4)
	opts := DefaultOptions()
	opts.Design.MinObservations = 1000

	report, err := newPipeline().Estimate(context.Background(), study.AITutorStudy(), sets, opts)
	require.NoError(t, err, "insufficient data is not fatal")
	for _, e := range report.Estimates {
		assert.NotEmpty(t, e.Warnings, e.Level)
	}
}
