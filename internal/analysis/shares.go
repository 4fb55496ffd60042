package analysis

import (
	"github.com/montanaflynn/stats"

	"sherockets/domain/choice"
	"sherockets/domain/study"
	"sherockets/internal/coding"
)

// ShareRow is the raw choice share of one level, split by the position it was shown in
type ShareRow struct {
	Attribute  string            `json:"attribute"`
	Level      string            `json:"level"`
	LevelLabel string            `json:"level_label"`
	Tally      coding.LevelTally `json:"tally"`
	Share      float64           `json:"share"`
	ShareInA   float64           `json:"share_in_a"`
	ShareInB   float64           `json:"share_in_b"`
	Observed   bool              `json:"observed"`
}

// ShareTable holds per-level shares plus randomisation balance checks
type ShareTable struct {
	Rows []ShareRow `json:"rows"`
	// ChoseA is the overall fraction of tasks answered "A"; far from 0.5 suggests position bias
	ChoseA float64 `json:"chose_a"`
	// Spread is max−min share within each attribute
	Spread map[string]float64 `json:"spread"`
}

// ChoiceShares tallies every level in study order
func ChoiceShares(s *study.Study, sets []choice.ChoiceSet) ShareTable {
	tally := coding.Tally(s, sets)
	table := ShareTable{Spread: make(map[string]float64, len(s.Attributes))}

	for _, attr := range s.Attributes {
		var shares []float64
		for _, l := range attr.Levels {
			t := tally[l.Code]
			row := ShareRow{Attribute: attr.Name, Level: l.Code, LevelLabel: l.Label, Tally: *t}
			row.Share, row.Observed = t.Share()
			row.ShareInA = ratio(t.ChosenInA, t.InA)
			row.ShareInB = ratio(t.ChosenInB, t.InB)
			if row.Observed {
				shares = append(shares, row.Share)
			}
			table.Rows = append(table.Rows, row)
		}
		if len(shares) > 0 {
			hi, _ := stats.Max(shares)
			lo, _ := stats.Min(shares)
			table.Spread[attr.Name] = hi - lo
		}
	}

	chosenA := 0
	for _, cs := range sets {
		if cs.ChoseA() {
			chosenA++
		}
	}
	table.ChoseA = ratio(chosenA, len(sets))
	return table
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
