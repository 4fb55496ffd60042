package analysis

import (
	"github.com/montanaflynn/stats"

	"sherockets/adapters/stats/welch"
	"sherockets/domain/choice"
	"sherockets/domain/study"
)

// RatingLevelStat summarises a rating over the choice sets whose chosen alternative shows the level
type RatingLevelStat struct {
	Attribute string  `json:"attribute"`
	Level     string  `json:"level"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	SD        float64 `json:"sd"`
}

// RatingContrast is a Welch test between the two levels of a binary attribute
type RatingContrast struct {
	Attribute string  `json:"attribute"`
	Level1    string  `json:"level1"`
	Level2    string  `json:"level2"`
	Mean1     float64 `json:"mean1"`
	Mean2     float64 `json:"mean2"`
	N1        int     `json:"n1"`
	N2        int     `json:"n2"`
	T         *float64 `json:"t"`
	DF        *float64 `json:"df"`
	PValue    *float64 `json:"p_value"` // nil when the pair could not be tested
	CohensD   float64  `json:"cohens_d"`
	Tested    bool     `json:"tested"`
	Skipped   string   `json:"skipped,omitempty"`
}

// RatingReport covers one rating outcome
type RatingReport struct {
	Kind      choice.RatingKind `json:"kind"`
	Rated     int               `json:"rated"` // choice sets carrying this rating
	Levels    []RatingLevelStat `json:"levels"`
	Contrasts []RatingContrast  `json:"contrasts"`
}

// AnalyzeRatings attributes each rating to the levels of the chosen alternative
func AnalyzeRatings(s *study.Study, sets []choice.ChoiceSet, kind choice.RatingKind) RatingReport {
	values := make(map[string][]float64)
	report := RatingReport{Kind: kind}
	for _, cs := range sets {
		v, ok := cs.Ratings.Value(kind)
		if !ok {
			continue
		}
		report.Rated++
		chosen := cs.Chosen()
		for _, attr := range s.Attributes {
			code := chosen.Levels[attr.Name]
			values[code] = append(values[code], v)
		}
	}

	for _, attr := range s.Attributes {
		for _, l := range attr.Levels {
			xs := values[l.Code]
			st := RatingLevelStat{Attribute: attr.Name, Level: l.Code, Count: len(xs)}
			if len(xs) > 0 {
				st.Mean, _ = stats.Mean(xs)
			}
			if len(xs) > 1 {
				st.SD, _ = stats.StandardDeviationSample(xs)
			}
			report.Levels = append(report.Levels, st)
		}
		if len(attr.Levels) != 2 {
			continue
		}
		a, b := attr.Levels[0].Code, attr.Levels[1].Code
		res, ok := welch.Test(values[a], values[b])
		c := RatingContrast{
			Attribute: attr.Name,
			Level1:    a,
			Level2:    b,
			Mean1:     res.Mean1,
			Mean2:     res.Mean2,
			N1:        res.N1,
			N2:        res.N2,
			CohensD:   res.CohensD,
			Tested:    ok,
			Skipped:   res.Skipped,
		}
		if ok {
			c.T, c.DF, c.PValue = &res.T, &res.DF, &res.PValue
		}
		report.Contrasts = append(report.Contrasts, c)
	}
	return report
}
