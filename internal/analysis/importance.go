package analysis

import (
	"sort"

	"sherockets/domain/effects"
	"sherockets/domain/study"
	"sherockets/internal/coding"
)

// PartWorth is a level's utility on the scale of the fitted model
type PartWorth struct {
	Attribute string  `json:"attribute"`
	Level     string  `json:"level"`
	Utility   float64 `json:"utility"`
	Estimated bool    `json:"estimated"`
}

// Importance is an attribute's share of the total part-worth range
type Importance struct {
	Attribute string  `json:"attribute"`
	Range     float64 `json:"range"`
	Percent   float64 `json:"percent"`
}

// PartWorths recovers a utility for every level. Dummy coding pins the reference at 0;
// effects coding sets it to minus the sum of the estimated levels. Excluded levels are 0.
func PartWorths(s *study.Study, report *Report) map[string][]PartWorth {
	byLevel := make(map[string]effects.EffectEstimate, len(report.Estimates))
	for _, e := range report.Estimates {
		byLevel[e.Level] = e
	}
	out := make(map[string][]PartWorth, len(s.Attributes))
	for _, attr := range s.Attributes {
		ref := report.References[attr.Name]
		var sum float64
		rows := make([]PartWorth, 0, len(attr.Levels))
		refIndex := -1
		for i, l := range attr.Levels {
			pw := PartWorth{Attribute: attr.Name, Level: l.Code}
			if e, ok := byLevel[l.Code]; ok && e.Estimated() {
				pw.Utility, pw.Estimated = e.Coefficient, true
				sum += e.Coefficient
			}
			if l.Code == ref {
				refIndex = i
			}
			rows = append(rows, pw)
		}
		if refIndex >= 0 && report.Scheme == coding.SchemeEffects {
			rows[refIndex].Utility = -sum
		}
		out[attr.Name] = rows
	}
	return out
}

// AttributeImportance is range(part-worths)/Σ ranges × 100, sorted by descending importance
func AttributeImportance(s *study.Study, report *Report) []Importance {
	worths := PartWorths(s, report)
	var total float64
	out := make([]Importance, 0, len(s.Attributes))
	for _, attr := range s.Attributes {
		rows := worths[attr.Name]
		lo, hi := rows[0].Utility, rows[0].Utility
		for _, pw := range rows[1:] {
			lo = min(lo, pw.Utility)
			hi = max(hi, pw.Utility)
		}
		out = append(out, Importance{Attribute: attr.Name, Range: hi - lo})
		total += hi - lo
	}
	if total > 0 {
		for i := range out {
			out[i].Percent = out[i].Range / total * 100
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percent > out[j].Percent })
	return out
}
