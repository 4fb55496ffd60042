package coding

import (
	"sherockets/domain/choice"
	"sherockets/domain/study"
)

// LevelTally counts how often a level was shown and chosen, split by position
type LevelTally struct {
	Appearances int `json:"appearances"`
	Chosen      int `json:"chosen"`
	InA         int `json:"in_a"`
	InB         int `json:"in_b"`
	ChosenInA   int `json:"chosen_in_a"`
	ChosenInB   int `json:"chosen_in_b"`
}

// Share is the raw choice share chosen/appearances; ok is false for unseen levels
func (t LevelTally) Share() (float64, bool) {
	if t.Appearances == 0 {
		return 0, false
	}
	return float64(t.Chosen) / float64(t.Appearances), true
}

// Tally counts every level of the study over the choice sets, keyed by level code.
// Every study level has an entry, including ones never shown.
func Tally(s *study.Study, sets []choice.ChoiceSet) map[string]*LevelTally {
	out := make(map[string]*LevelTally)
	for _, ref := range s.Levels() {
		out[ref.Level.Code] = &LevelTally{}
	}
	for _, cs := range sets {
		for _, alt := range cs.Alternatives() {
			chosen := alt.Position == cs.Selection
			for _, attr := range s.Attributes {
				t, ok := out[alt.Levels[attr.Name]]
				if !ok {
					continue
				}
				t.Appearances++
				if alt.Position == choice.PositionA {
					t.InA++
				} else {
					t.InB++
				}
				if chosen {
					t.Chosen++
					if alt.Position == choice.PositionA {
						t.ChosenInA++
					} else {
						t.ChosenInB++
					}
				}
			}
		}
	}
	return out
}
