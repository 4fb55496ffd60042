package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherockets/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Analysis.TaskCount)
	assert.Equal(t, "lowest-share", cfg.Analysis.ReferencePolicy)
	assert.Equal(t, "wald", cfg.Analysis.SignificanceMethod)
	assert.True(t, cfg.Analysis.ExcludeBalanced)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)

	s, err := cfg.ResolveStudy()
	require.NoError(t, err)
	assert.Len(t, s.Attributes, 7)
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "analysis.yaml", `
analysis:
  task_count: 6
  attributes: [Tutor, Pricing]
  coding_scheme: effects
  significance_method: bootstrap
  bootstrap_iterations: 250
  exclude_balanced: false
survey:
  file: survey.csv
`)
	t.Setenv("BOOTSTRAP_ITERATIONS", "500")
	t.Setenv("SEED", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Analysis.TaskCount)
	assert.Equal(t, "effects", cfg.Analysis.CodingScheme)
	assert.Equal(t, 500, cfg.Analysis.BootstrapIterations, "environment overrides the file")
	assert.Equal(t, int64(7), cfg.Analysis.Seed)
	assert.False(t, cfg.Analysis.ExcludeBalanced)
	assert.Equal(t, "survey.csv", cfg.Survey.File)

	s, err := cfg.ResolveStudy()
	require.NoError(t, err)
	assert.Equal(t, []string{"Tutor", "Pricing"}, s.AttributeNames())
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "bad.yaml", "analysis:\n  coding: dummy\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tasks", func(c *Config) { c.Analysis.TaskCount = 0 }},
		{"unknown scheme", func(c *Config) { c.Analysis.CodingScheme = "helmert" }},
		{"mixed method", func(c *Config) { c.Analysis.SignificanceMethod = "min" }},
		{"explicit without map", func(c *Config) { c.Analysis.ReferencePolicy = "explicit" }},
		{"explicit with foreign level", func(c *Config) {
			c.Analysis.ReferencePolicy = "explicit"
			c.Analysis.Attributes = []string{"Tutor"}
			c.Analysis.ReferenceLevels = map[string]string{"Tutor": "school_pays"}
		}},
		{"explicit missing attribute", func(c *Config) {
			c.Analysis.ReferencePolicy = "explicit"
			c.Analysis.Attributes = []string{"Tutor", "Pricing"}
			c.Analysis.ReferenceLevels = map[string]string{"Tutor": "male_tutor"}
		}},
		{"unknown attribute", func(c *Config) { c.Analysis.Attributes = []string{"Mascot"} }},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"non-positive tolerance", func(c *Config) { c.Analysis.Tolerance = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}

	cfg := Default()
	cfg.Analysis.ReferencePolicy = "explicit"
	cfg.Analysis.Attributes = []string{"Tutor"}
	cfg.Analysis.ReferenceLevels = map[string]string{"Tutor": "male_tutor"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadStudy(t *testing.T) {
	path := writeFile(t, "study.yaml", `
name: mini
attributes:
  - name: Mascot
    levels:
      - {code: robot, label: Robot, match: [Robot]}
      - {code: owl, label: Owl}
`)
	s, err := LoadStudy(path)
	require.NoError(t, err)
	assert.Equal(t, "mini", s.Name)
	lvl, ok := s.Attributes[0].MatchLevel("A friendly Robot")
	assert.True(t, ok)
	assert.Equal(t, "robot", lvl.Code)

	bad := writeFile(t, "bad.yaml", "name: x\nattributes:\n  - name: A\n    levels: [{code: only}]\n")
	_, err = LoadStudy(bad)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
