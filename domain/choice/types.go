package choice

import (
	"fmt"

	"sherockets/domain/core"
)

// Position labels one of the two alternatives shown in a task
type Position string

const (
	PositionA Position = "A"
	PositionB Position = "B"
)

// ParsePosition accepts exactly "A" or "B"
func ParsePosition(s string) (Position, bool) {
	switch Position(s) {
	case PositionA:
		return PositionA, true
	case PositionB:
		return PositionB, true
	}
	return "", false
}

// Other returns the opposite position
func (p Position) Other() Position {
	if p == PositionA {
		return PositionB
	}
	return PositionA
}

// Alternative carries one level code per attribute, keyed by attribute name
type Alternative struct {
	Position Position          `json:"position"`
	Levels   map[string]string `json:"levels"`
}

// Has reports whether the alternative shows the given level of an attribute
func (a Alternative) Has(attribute, level string) bool {
	return a.Levels[attribute] == level
}

// Ratings are optional post-choice scores given to the chosen alternative
type Ratings struct {
	PerceivedLearning *float64 `json:"perceived_learning,omitempty"`
	ExpectedEnjoyment *float64 `json:"expected_enjoyment,omitempty"`
}

// RatingKind names one of the rating outcomes
type RatingKind string

const (
	RatingPerceivedLearning RatingKind = "perceived_learning"
	RatingExpectedEnjoyment RatingKind = "expected_enjoyment"
)

// Value returns the rating of the given kind, if recorded
func (r Ratings) Value(kind RatingKind) (float64, bool) {
	var v *float64
	switch kind {
	case RatingPerceivedLearning:
		v = r.PerceivedLearning
	case RatingExpectedEnjoyment:
		v = r.ExpectedEnjoyment
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// ChoiceSet is one forced choice between two alternatives
type ChoiceSet struct {
	Respondent core.RespondentID `json:"respondent"`
	Task       int               `json:"task"`
	A          Alternative       `json:"a"`
	B          Alternative       `json:"b"`
	Selection  Position          `json:"selection"`
	Ratings    Ratings           `json:"ratings"`
	Group      string            `json:"group,omitempty"` // respondent-level segment, e.g. grade
}

// Key identifies the choice set within a run
func (c ChoiceSet) Key() string {
	return fmt.Sprintf("%s_%d", c.Respondent, c.Task)
}

// ChoseA is the binary outcome used by the estimator
func (c ChoiceSet) ChoseA() bool {
	return c.Selection == PositionA
}

// Chosen returns the selected alternative
func (c ChoiceSet) Chosen() Alternative {
	if c.Selection == PositionA {
		return c.A
	}
	return c.B
}

// Alternatives returns A then B
func (c ChoiceSet) Alternatives() [2]Alternative {
	return [2]Alternative{c.A, c.B}
}
