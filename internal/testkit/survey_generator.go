package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"sherockets/domain/dataset"
	"sherockets/domain/study"
)

// SurveyGeneratorConfig configures the synthetic wide-format conjoint export
type SurveyGeneratorConfig struct {
	Respondents int                `json:"respondents"`
	Tasks       int                `json:"tasks"`
	PartWorths  map[string]float64 `json:"part_worths"` // level code -> utility; missing codes are 0
	Grades      []string           `json:"grades"`
	WithRatings bool               `json:"with_ratings"`
	Seed        int64              `json:"seed"`
}

// DefaultSurveyConfig mirrors the shape of the AI tutor study with a clear preference structure
func DefaultSurveyConfig() SurveyGeneratorConfig {
	return SurveyGeneratorConfig{
		Respondents: 150,
		Tasks:       8,
		PartWorths: map[string]float64{
			"female_tutor":       0.4,
			"friendly_colors":    0.2,
			"school_pays":        1.2,
			"pricing_4_99":       0.6,
			"pricing_7_99":       0.3,
			"pricing_9_99":       0.1,
			"growth_message":     0.3,
			"supportive_message": 0.5,
			"space_rescue_story": 0.4,
			"hero_astronaut":     0.2,
		},
		Grades:      []string{"6", "7", "8"},
		WithRatings: true,
		Seed:        42,
	}
}

// SurveyGenerator draws random profile pairs and logit choices from known part-worths
type SurveyGenerator struct {
	config SurveyGeneratorConfig
	study  *study.Study
	rng    *rand.Rand
}

// NewSurveyGenerator creates a generator over the given study
func NewSurveyGenerator(s *study.Study, config SurveyGeneratorConfig) *SurveyGenerator {
	return &SurveyGenerator{
		config: config,
		study:  s,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Headers lists the export columns in a stable order
func (g *SurveyGenerator) Headers() []string {
	headers := []string{"ResponseId", "Grade"}
	for task := 1; task <= g.config.Tasks; task++ {
		for _, alt := range []string{"A", "B"} {
			for _, a := range g.study.Attributes {
				headers = append(headers, fmt.Sprintf("%s_%s%d", alt, a.Name, task))
			}
		}
		headers = append(headers, fmt.Sprintf("Task%d_choice", task))
		if g.config.WithRatings {
			headers = append(headers,
				fmt.Sprintf("Task%d_perceivedlearning", task),
				fmt.Sprintf("Task%d_expectedenjoyment", task))
		}
	}
	return headers
}

// Generate builds the full table; the same seed always yields the same table
func (g *SurveyGenerator) Generate() *dataset.Table {
	headers := g.Headers()
	records := make([]dataset.RawRowData, 0, g.config.Respondents)

	for r := 0; r < g.config.Respondents; r++ {
		rec := dataset.RawRowData{"ResponseId": fmt.Sprintf("R_%04d", r+1)}
		if len(g.config.Grades) > 0 {
			rec["Grade"] = g.config.Grades[g.rng.Intn(len(g.config.Grades))]
		}
		for task := 1; task <= g.config.Tasks; task++ {
			var utility [2]float64
			var learning [2]float64
			for i, alt := range []string{"A", "B"} {
				for _, a := range g.study.Attributes {
					level := a.Levels[g.rng.Intn(len(a.Levels))]
					rec[fmt.Sprintf("%s_%s%d", alt, a.Name, task)] = level.Label
					utility[i] += g.config.PartWorths[level.Code]
					if level.Code == "growth_message" || level.Code == "supportive_message" {
						learning[i] += 0.75
					}
				}
			}

			pA := 1 / (1 + math.Exp(-(utility[0] - utility[1])))
			chosen := 1
			choice := "B"
			if g.rng.Float64() < pA {
				chosen, choice = 0, "A"
			}
			rec[fmt.Sprintf("Task%d_choice", task)] = choice

			if g.config.WithRatings {
				rec[fmt.Sprintf("Task%d_perceivedlearning", task)] = strconv.Itoa(g.rating(2.5 + learning[chosen]))
				rec[fmt.Sprintf("Task%d_expectedenjoyment", task)] = strconv.Itoa(g.rating(3 + utility[chosen]/2))
			}
		}
		records = append(records, rec)
	}

	return dataset.NewTable("synthetic", headers, records, "ResponseId")
}

// rating draws a 1..5 score around mean
func (g *SurveyGenerator) rating(mean float64) int {
	v := int(math.Round(mean + g.rng.NormFloat64()*0.8))
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// WriteCSV serialises a table in header order
func WriteCSV(w io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Headers))
		for i, h := range t.Headers {
			record[i] = row.Cells[h]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TableFromRecords builds a table from literal records, deriving headers from the union of keys
func TableFromRecords(records ...dataset.RawRowData) *dataset.Table {
	seen := make(map[string]bool)
	var headers []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	return dataset.NewTable("literal", headers, records, "")
}
