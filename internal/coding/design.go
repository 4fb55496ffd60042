package coding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/effects"
	"sherockets/domain/study"
	"sherockets/internal"
	"sherockets/internal/linalg"
)

// balancedEpsilon is the |Σ| below which a difference column counts as balanced
const balancedEpsilon = 1e-10

// DesignOptions controls column screening
type DesignOptions struct {
	MinObservations int  // appearances below this annotate the level; 0 means 1
	ExcludeBalanced bool // drop columns whose A−B differences sum to zero
}

// DefaultDesignOptions returns the screening defaults
func DefaultDesignOptions() DesignOptions {
	return DesignOptions{MinObservations: 1, ExcludeBalanced: true}
}

// LevelStatus records what happened to one study level
type LevelStatus struct {
	Ref     study.LevelRef
	Status  effects.Status
	Reason  effects.ExclusionReason
	Count   int
	Column  int // index into Design.X, -1 when not estimated
	Warning *core.InsufficientDataError
}

// Design is the screened regression problem: one row per choice set, y = 1 when A was chosen
type Design struct {
	X          *mat.Dense
	Y          []float64
	Columns    []Column
	Levels     []LevelStatus
	References map[string]string
	Scheme     Scheme
	Tally      map[string]*LevelTally
}

// Names labels the included columns
func (d *Design) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name()
	}
	return names
}

// Rows is the number of choice sets
func (d *Design) Rows() int {
	return len(d.Y)
}

// BuildDesign differences every choice set and screens out columns the estimator cannot use.
// The returned X never holds a constant column.
func BuildDesign(s *study.Study, coder *Coder, sets []choice.ChoiceSet, opts DesignOptions, logger *internal.Logger) (*Design, error) {
	logger = internal.OrDefault(logger).With("coding")
	if len(sets) == 0 {
		return nil, fmt.Errorf("no choice sets to code")
	}
	if opts.MinObservations <= 0 {
		opts.MinObservations = 1
	}

	columns := coder.Columns()
	n, m := len(sets), len(columns)
	full := make([][]float64, n)
	y := make([]float64, n)
	for i, cs := range sets {
		full[i] = coder.Difference(cs)
		if cs.ChoseA() {
			y[i] = 1
		}
	}
	tally := Tally(s, sets)

	reasons := make([]effects.ExclusionReason, m)
	for j, col := range columns {
		reasons[j] = screen(full, j, tally[col.Ref.Level.Code].Appearances, opts.ExcludeBalanced)
	}

	// greedy pass over survivors: a column that adds no rank is collinear with earlier ones
	var kept []int
	for j := range columns {
		if reasons[j] != effects.ReasonNone {
			continue
		}
		candidate := append(append([]int(nil), kept...), j)
		if linalg.Rank(subMatrix(full, candidate)) < len(candidate) {
			reasons[j] = effects.ReasonCollinear
			continue
		}
		kept = append(kept, j)
	}

	if len(kept) == 0 {
		names := make([]string, m)
		for j, c := range columns {
			names[j] = c.Name()
		}
		return nil, &core.RankDeficiencyError{Columns: names, Rank: 0, Rows: n}
	}

	d := &Design{
		X:          subMatrix(full, kept),
		Y:          y,
		References: coder.References(),
		Scheme:     coder.Scheme(),
		Tally:      tally,
	}
	position := make(map[string]int, len(kept))
	for i, j := range kept {
		d.Columns = append(d.Columns, columns[j])
		position[columns[j].Ref.Level.Code] = i
	}
	reasonByCode := make(map[string]effects.ExclusionReason, m)
	for j, col := range columns {
		reasonByCode[col.Ref.Level.Code] = reasons[j]
	}

	for _, ref := range s.Levels() {
		code := ref.Level.Code
		ls := LevelStatus{Ref: ref, Count: tally[code].Appearances, Column: -1}
		switch {
		case d.References[ref.Attribute] == code:
			ls.Status, ls.Reason = effects.StatusReference, effects.ReasonReference
		case reasonByCode[code] != effects.ReasonNone:
			ls.Status, ls.Reason = effects.StatusExcluded, reasonByCode[code]
			logger.Warn("excluding %s: %s (appearances %d)", ref, ls.Reason, ls.Count)
		default:
			ls.Status, ls.Column = effects.StatusIncluded, position[code]
		}
		if ls.Count < opts.MinObservations {
			ls.Warning = &core.InsufficientDataError{Level: ref.String(), Count: ls.Count, Minimum: opts.MinObservations}
		}
		d.Levels = append(d.Levels, ls)
	}

	logger.Debug("design %dx%d (%d of %d columns kept, scheme %s)", n, len(kept), len(kept), m, coder.Scheme())
	return d, nil
}

// screen applies the zero-variance rules to column j
func screen(rows [][]float64, j, appearances int, excludeBalanced bool) effects.ExclusionReason {
	if appearances == 0 {
		return effects.ReasonUnobserved
	}
	first := rows[0][j]
	constant := true
	var sum float64
	for _, r := range rows {
		if r[j] != first {
			constant = false
		}
		sum += r[j]
	}
	switch {
	case constant:
		return effects.ReasonConstant
	case excludeBalanced && math.Abs(sum) <= balancedEpsilon:
		return effects.ReasonBalanced
	}
	return effects.ReasonNone
}

func subMatrix(rows [][]float64, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for k, j := range cols {
			out.Set(i, k, r[j])
		}
	}
	return out
}
