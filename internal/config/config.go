package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sherockets/domain/study"
	"sherockets/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Survey    SurveyConfig   `yaml:"survey"`
	Analysis  AnalysisConfig `yaml:"analysis"`
	Database  DatabaseConfig `yaml:"database"`
	Server    ServerConfig   `yaml:"server"`
	StudyFile string         `yaml:"study_file"`
	Study     *study.Study   `yaml:"study,omitempty"` // inline definition; the bundled AI tutor study otherwise
}

// SurveyConfig locates the wide-format export
type SurveyConfig struct {
	File        string `yaml:"file"`
	Sheet       string `yaml:"sheet"`
	IDColumn    string `yaml:"id_column"`
	GroupColumn string `yaml:"group_column"`
}

// AnalysisConfig holds every option that changes the estimates
type AnalysisConfig struct {
	TaskCount               int               `yaml:"task_count" validate:"min=1"`
	Attributes              []string          `yaml:"attributes"`
	ReferencePolicy         string            `yaml:"reference_policy" validate:"oneof=lowest-share explicit"`
	ReferenceLevels         map[string]string `yaml:"reference_levels"`
	CodingScheme            string            `yaml:"coding_scheme" validate:"oneof=dummy effects difference"`
	SignificanceMethod      string            `yaml:"significance_method" validate:"oneof=wald bootstrap permutation"`
	BootstrapIterations     int               `yaml:"bootstrap_iterations" validate:"min=1,max=100000"`
	MinObservationsPerLevel int               `yaml:"min_observations_per_level" validate:"min=0"`
	ExcludeBalanced         bool              `yaml:"exclude_balanced"`
	MaxIterations           int               `yaml:"max_iterations" validate:"min=1"`
	Tolerance               float64           `yaml:"tolerance" validate:"gt=0"`
	Seed                    int64             `yaml:"seed"`
	Workers                 int               `yaml:"workers" validate:"min=0"`
	MinSubgroupSets         int               `yaml:"min_subgroup_sets" validate:"min=1"`
}

// DatabaseConfig selects the run store; an empty URL disables persistence
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres sqlite3"`
	URL    string `yaml:"url"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port          string `yaml:"port" validate:"required"`
	MaxUploadMB   int    `yaml:"max_upload_mb" validate:"min=1"`
	EnableMetrics bool   `yaml:"enable_metrics"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Survey: SurveyConfig{GroupColumn: "Grade"},
		Analysis: AnalysisConfig{
			TaskCount:               8,
			ReferencePolicy:         "lowest-share",
			CodingScheme:            "dummy",
			SignificanceMethod:      "wald",
			BootstrapIterations:     1000,
			MinObservationsPerLevel: 1,
			ExcludeBalanced:         true,
			MaxIterations:           100,
			Tolerance:               1e-8,
			Seed:                    42,
			MinSubgroupSets:         40,
		},
		Database: DatabaseConfig{Driver: "sqlite3"},
		Server:   ServerConfig{Port: "8080", MaxUploadMB: 32, EnableMetrics: true},
	}
}

// Load reads .env (if present), the optional YAML file, then environment overrides, and
// validates the result. path may be empty; CONFIG_FILE is consulted then.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to read .env")
	}

	config := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}
	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse %s: %w", path, err))
	}
	return nil
}

func applyEnv(c *Config) {
	c.Survey.File = getEnvOrDefault("SURVEY_FILE", c.Survey.File)
	c.Survey.Sheet = getEnvOrDefault("SURVEY_SHEET", c.Survey.Sheet)
	c.Survey.IDColumn = getEnvOrDefault("ID_COLUMN", c.Survey.IDColumn)
	c.Survey.GroupColumn = getEnvOrDefault("GROUP_COLUMN", c.Survey.GroupColumn)
	c.StudyFile = getEnvOrDefault("STUDY_FILE", c.StudyFile)

	a := &c.Analysis
	a.TaskCount = getEnvIntOrDefault("TASK_COUNT", a.TaskCount)
	if v := os.Getenv("ATTRIBUTES"); v != "" {
		a.Attributes = splitList(v)
	}
	a.ReferencePolicy = getEnvOrDefault("REFERENCE_POLICY", a.ReferencePolicy)
	a.CodingScheme = getEnvOrDefault("CODING_SCHEME", a.CodingScheme)
	a.SignificanceMethod = getEnvOrDefault("SIGNIFICANCE_METHOD", a.SignificanceMethod)
	a.BootstrapIterations = getEnvIntOrDefault("BOOTSTRAP_ITERATIONS", a.BootstrapIterations)
	a.MinObservationsPerLevel = getEnvIntOrDefault("MIN_OBS_PER_LEVEL", a.MinObservationsPerLevel)
	a.ExcludeBalanced = getEnvBoolOrDefault("EXCLUDE_BALANCED", a.ExcludeBalanced)
	a.MaxIterations = getEnvIntOrDefault("MAX_ITERATIONS", a.MaxIterations)
	a.Tolerance = getEnvFloatOrDefault("TOLERANCE", a.Tolerance)
	a.Seed = int64(getEnvIntOrDefault("SEED", int(a.Seed)))
	a.Workers = getEnvIntOrDefault("WORKERS", a.Workers)

	c.Database.Driver = getEnvOrDefault("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = getEnvOrDefault("DATABASE_URL", c.Database.URL)
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.EnableMetrics = getEnvBoolOrDefault("ENABLE_METRICS", c.Server.EnableMetrics)
}

var validate = validator.New()

// Validate checks field constraints, then rules spanning several fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.ActualTag()+paramSuffix(fe.Param()), fe.Value())
			}
			return errors.ConfigInvalid(strings.Join(msgs, "; "))
		}
		return errors.ConfigInvalid(err.Error())
	}

	if c.Analysis.ReferencePolicy == "explicit" && len(c.Analysis.ReferenceLevels) == 0 {
		return errors.ConfigInvalid("reference_policy explicit requires reference_levels")
	}

	s, err := c.ResolveStudy()
	if err != nil {
		return err
	}
	if c.Analysis.ReferencePolicy == "explicit" {
		for _, attr := range s.Attributes {
			code, ok := c.Analysis.ReferenceLevels[attr.Name]
			if !ok {
				return errors.ConfigInvalid(fmt.Sprintf("reference_levels has no entry for %s", attr.Name))
			}
			if attr.IndexOf(code) < 0 {
				return errors.ConfigInvalid(fmt.Sprintf("reference level %q is not a level of %s", code, attr.Name))
			}
		}
	}
	return nil
}

// ResolveStudy returns the study to analyse, restricted to the configured attributes
func (c *Config) ResolveStudy() (*study.Study, error) {
	s := c.Study
	if c.StudyFile != "" {
		loaded, err := LoadStudy(c.StudyFile)
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	if s == nil {
		s = study.AITutorStudy()
	}
	if err := s.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	sub, err := s.Subset(c.Analysis.Attributes)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return sub, nil
}

// LoadStudy reads a study definition from YAML
func LoadStudy(path string) (*study.Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read study file %s", path)
	}
	var s study.Study
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse study %s: %w", path, err))
	}
	if err := s.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return &s, nil
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
