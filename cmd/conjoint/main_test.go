package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherockets/domain/effects"
	"sherockets/internal/analysis"
)

func init() {
	color.NoColor = true
}

// execute runs the root command with isolated configuration and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SURVEY_FILE", "")
	t.Setenv("LOG_LEVEL", "ERROR")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func generateSurvey(t *testing.T, name string, respondents int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	out, err := execute(t, "generate", "--out", path, "--respondents", strconv.Itoa(respondents))
	require.NoError(t, err, out)
	assert.Contains(t, out, "Survey export created")
	return path
}

func TestGenerateThenEstimate(t *testing.T) {
	path := generateSurvey(t, "survey.csv", 120)

	outFile := filepath.Join(t.TempDir(), "effects.json")
	out, err := execute(t, "estimate", path, "--coding", "effects", "--out", outFile, "--quiet")
	require.NoError(t, err, out)
	assert.Contains(t, out, "960 choice sets, effects coding, wald significance")
	assert.Contains(t, out, "ATTRIBUTE")

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var report struct {
		Scheme    string            `json:"coding_scheme"`
		Estimates []json.RawMessage `json:"estimates"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "effects", report.Scheme)
	assert.Len(t, report.Estimates, 17)
}

func TestEstimate_XLSXInputJSONOutput(t *testing.T) {
	path := generateSurvey(t, "survey.xlsx", 60)

	out, err := execute(t, "estimate", path, "--json", "--method", "bootstrap", "--iterations", "10", "--seed", "3")
	require.NoError(t, err)
	var res struct {
		Report struct {
			Method     string `json:"significance_method"`
			Resampling struct {
				Requested int   `json:"requested"`
				Seed      int64 `json:"seed"`
			} `json:"resampling"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "bootstrap", res.Report.Method)
	assert.Equal(t, 10, res.Report.Resampling.Requested)
	assert.Equal(t, int64(3), res.Report.Resampling.Seed)
}

func TestDescriptiveCommands(t *testing.T) {
	path := generateSurvey(t, "survey.csv", 90)

	out, err := execute(t, "shares", path)
	require.NoError(t, err)
	assert.Contains(t, out, "720 choice sets")
	assert.Contains(t, out, "SHARE")

	out, err = execute(t, "ratings", path, "--kind", "expected_enjoyment")
	require.NoError(t, err)
	assert.Contains(t, out, "expected_enjoyment")

	_, err = execute(t, "ratings", path, "--kind", "satisfaction")
	assert.Error(t, err)

	out, err = execute(t, "importance", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Relative importance")

	out, err = execute(t, "subgroups", path)
	require.NoError(t, err)
	assert.Contains(t, out, "group 6")
}

func TestSimulate(t *testing.T) {
	path := generateSurvey(t, "survey.csv", 90)

	out, err := execute(t, "simulate", path, "--profile", "basic=pricing_9_99", "--profile", "premium=school_pays,female_tutor")
	require.NoError(t, err)
	assert.Contains(t, out, "basic")
	assert.Contains(t, out, "premium")

	_, err = execute(t, "simulate", path, "--profile", "only=school_pays")
	assert.Error(t, err)

	_, err = execute(t, "simulate", path, "--profile", "a=school_pays", "--profile", "b=no_such_level")
	assert.Error(t, err)
}

func TestCommandErrors(t *testing.T) {
	_, err := execute(t, "estimate")
	assert.Error(t, err, "no survey path and no SURVEY_FILE")

	_, err = execute(t, "generate", "--out", filepath.Join(t.TempDir(), "survey.txt"))
	assert.Error(t, err)

	_, err = execute(t, "runs")
	assert.Error(t, err, "runs needs a store")

	_, err = execute(t, "migrate")
	assert.Error(t, err, "migrate needs DATABASE_URL")
}

func TestRunsWithSQLiteStore(t *testing.T) {
	path := generateSurvey(t, "survey.csv", 60)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	run := func(args ...string) (string, error) {
		t.Helper()
		t.Setenv("CONFIG_FILE", "")
		t.Setenv("SURVEY_FILE", "")
		t.Setenv("LOG_LEVEL", "ERROR")
		t.Setenv("DATABASE_DRIVER", "sqlite3")
		t.Setenv("DATABASE_URL", dbPath)
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run("migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	out, err = run("migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	_, err = run("estimate", path, "--quiet")
	require.NoError(t, err)

	out, err = run("runs")
	require.NoError(t, err)
	assert.Contains(t, out, "ai-tutor")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	out, err = run("runs", id)
	require.NoError(t, err)
	assert.Contains(t, out, "run "+id)

	_, err = run("runs", "0195a7c2-0000-7000-8000-000000000000")
	assert.Error(t, err)
}

func TestPrintEstimates(t *testing.T) {
	var buf bytes.Buffer
	printEstimates(&buf, []effects.EffectEstimate{
		{Attribute: "Payer", Level: "school_pays", LevelLabel: "School pays", Coefficient: 1.2, StdError: 0.1,
			CI: effects.Interval{Lower: 1.0, Upper: 1.4}, PValue: 0.0001, AME: 25.3, Tier: effects.TierP001, Status: effects.StatusIncluded},
		{Attribute: "Story", Level: "space", LevelLabel: "Space rescue", Coefficient: 0.1, StdError: math.NaN(),
			CI: effects.Interval{Lower: math.NaN(), Upper: math.NaN()}, PValue: 0.4, Tier: effects.TierNS, Status: effects.StatusIncluded},
		effects.Placeholder("Story", "none", "No story", effects.StatusReference, "", effects.MethodWald, 30),
	})
	out := buf.String()
	assert.Contains(t, out, "<0.001")
	assert.Contains(t, out, "***")
	assert.Contains(t, out, "[NA, NA]")
	assert.Contains(t, out, "excluded reference")
}

func TestPrintMarket(t *testing.T) {
	var buf bytes.Buffer
	printMarket(&buf, []analysis.MarketShare{{Profile: "a", Utility: 0.5, Share: 0.62}, {Profile: "b", Share: 0.38}})
	assert.Contains(t, buf.String(), "62.0%")
	assert.Contains(t, buf.String(), "38.0%")
}

func TestPrintRatings_UntestedContrast(t *testing.T) {
	var buf bytes.Buffer
	printRatings(&buf, analysis.RatingReport{
		Kind:  "perceived_learning",
		Rated: 4,
		Contrasts: []analysis.RatingContrast{
			{Attribute: "Tutor", Level1: "female_tutor", Level2: "male_tutor", Mean1: 3, Mean2: 3, Skipped: "zero variance in both samples"},
		},
	})
	assert.Contains(t, buf.String(), "not tested, zero variance in both samples")
}

func TestCodingFlagListsEveryScheme(t *testing.T) {
	cmd := newEstimateCmd(&globalOptions{})
	usage := cmd.Flags().Lookup("coding").Usage
	for _, scheme := range []string{"dummy", "effects", "difference"} {
		assert.Contains(t, usage, scheme)
	}
}
