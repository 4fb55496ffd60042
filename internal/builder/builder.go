package builder

import (
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/dataset"
	"sherockets/domain/study"
	"sherockets/internal"
)

// DefaultTaskCount is the number of choice tasks each respondent saw in the tutor survey
const DefaultTaskCount = 8

// Options configures how wide rows are reshaped into choice sets
type Options struct {
	TaskCount   int
	GroupColumn string // respondent-level field copied onto every choice set, e.g. "Grade"
}

// Builder turns one wide respondent row into one ChoiceSet per task
type Builder struct {
	study  *study.Study
	opts   Options
	logger *internal.Logger
}

// New creates a builder for the given study. The study is validated once here.
func New(s *study.Study, opts Options, logger *internal.Logger) (*Builder, error) {
	if s == nil {
		return nil, core.NewStudyError("nil study")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if opts.TaskCount == 0 {
		opts.TaskCount = DefaultTaskCount
	}
	if opts.TaskCount < 0 {
		return nil, fmt.Errorf("task count must be positive, got %d", opts.TaskCount)
	}
	return &Builder{
		study:  s,
		opts:   opts,
		logger: internal.OrDefault(logger).With("builder"),
	}, nil
}

// TaskCount returns the configured number of tasks per respondent
func (b *Builder) TaskCount() int {
	return b.opts.TaskCount
}

// AttributeColumn names the cell holding an alternative's level for a task
func AttributeColumn(alt choice.Position, attribute string, task int) string {
	return fmt.Sprintf("%s_%s%d", alt, attribute, task)
}

// ChoiceColumn names the observed selection for a task
func ChoiceColumn(task int) string {
	return fmt.Sprintf("Task%d_choice", task)
}

// RatingColumn names an optional post-choice rating for a task
func RatingColumn(kind choice.RatingKind, task int) string {
	switch kind {
	case choice.RatingPerceivedLearning:
		return fmt.Sprintf("Task%d_perceivedlearning", task)
	default:
		return fmt.Sprintf("Task%d_expectedenjoyment", task)
	}
}

// Build produces the ChoiceSet for one respondent and task. Any malformed cell is an error;
// nothing is defaulted.
func (b *Builder) Build(row dataset.Row, task int) (choice.ChoiceSet, error) {
	if task < 1 || task > b.opts.TaskCount {
		return choice.ChoiceSet{}, fmt.Errorf("task %d out of range [1, %d]", task, b.opts.TaskCount)
	}
	respondent := string(row.ID)

	cs := choice.ChoiceSet{
		Respondent: row.ID,
		Task:       task,
		A:          choice.Alternative{Position: choice.PositionA, Levels: make(map[string]string, len(b.study.Attributes))},
		B:          choice.Alternative{Position: choice.PositionB, Levels: make(map[string]string, len(b.study.Attributes))},
	}

	for _, attr := range b.study.Attributes {
		for _, alt := range []*choice.Alternative{&cs.A, &cs.B} {
			column := AttributeColumn(alt.Position, attr.Name, task)
			cell, ok := row.Get(column)
			if !ok || isMissing(cell) {
				return choice.ChoiceSet{}, &core.MissingFieldError{Column: column, Respondent: respondent, Task: task}
			}
			level, ok := attr.MatchLevel(cell)
			if !ok {
				return choice.ChoiceSet{}, &core.UnknownLevelError{
					Attribute:  attr.Name,
					Column:     column,
					Value:      cell,
					Respondent: respondent,
					Task:       task,
				}
			}
			alt.Levels[attr.Name] = level.Code
		}
	}

	column := ChoiceColumn(task)
	raw, _ := row.Get(column)
	selection, ok := choice.ParsePosition(raw)
	if !ok {
		return choice.ChoiceSet{}, &core.InvalidChoiceError{Column: column, Value: raw, Respondent: respondent, Task: task}
	}
	cs.Selection = selection

	var err error
	if cs.Ratings.PerceivedLearning, err = parseRating(row, choice.RatingPerceivedLearning, task); err != nil {
		return choice.ChoiceSet{}, err
	}
	if cs.Ratings.ExpectedEnjoyment, err = parseRating(row, choice.RatingExpectedEnjoyment, task); err != nil {
		return choice.ChoiceSet{}, err
	}

	if b.opts.GroupColumn != "" {
		cs.Group, _ = row.Get(b.opts.GroupColumn)
	}
	return cs, nil
}

// All lazily yields every (respondent, task) choice set in row order. Each call starts over.
// Iteration stops after the first error is yielded.
func (b *Builder) All(table *dataset.Table) iter.Seq2[choice.ChoiceSet, error] {
	return func(yield func(choice.ChoiceSet, error) bool) {
		for _, row := range table.Rows {
			for task := 1; task <= b.opts.TaskCount; task++ {
				cs, err := b.Build(row, task)
				if err != nil {
					yield(choice.ChoiceSet{}, err)
					return
				}
				if !yield(cs, nil) {
					return
				}
			}
		}
	}
}

// Collect materializes All, aborting the whole run on the first malformed row
func (b *Builder) Collect(table *dataset.Table) ([]choice.ChoiceSet, error) {
	sets := make([]choice.ChoiceSet, 0, table.RowCount()*b.opts.TaskCount)
	for cs, err := range b.All(table) {
		if err != nil {
			return nil, err
		}
		sets = append(sets, cs)
	}
	b.logger.Debug("built %d choice sets from %d respondents x %d tasks", len(sets), table.RowCount(), b.opts.TaskCount)
	return sets, nil
}

// CheckColumns reports every expected attribute/choice column missing from the header,
// so a bad export fails before any row is touched
func (b *Builder) CheckColumns(table *dataset.Table) error {
	var missing []string
	for task := 1; task <= b.opts.TaskCount; task++ {
		for _, attr := range b.study.Attributes {
			for _, pos := range []choice.Position{choice.PositionA, choice.PositionB} {
				if c := AttributeColumn(pos, attr.Name, task); !table.HasColumn(c) {
					missing = append(missing, c)
				}
			}
		}
		if c := ChoiceColumn(task); !table.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d expected columns absent: %s", core.ErrMissingField, len(missing), strings.Join(missing, ", "))
}

func parseRating(row dataset.Row, kind choice.RatingKind, task int) (*float64, error) {
	column := RatingColumn(kind, task)
	cell, ok := row.Get(column)
	if !ok || isMissing(cell) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(v, 0) {
		return nil, &core.MissingFieldError{Column: column, Respondent: string(row.ID), Task: task}
	}
	return &v, nil
}

// isMissing treats blank cells and spreadsheet NaN markers as absent
func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "nan", "na", "n/a", "null":
		return true
	}
	return false
}
