package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrMissingField  = errors.New("missing field")
	ErrUnknownLevel  = fmt.Errorf("%w: unknown attribute level", ErrMissingField)
	ErrInvalidChoice = errors.New("invalid choice")

	// Estimation errors
	ErrRankDeficiency   = errors.New("rank-deficient design matrix")
	ErrNonConvergence   = errors.New("estimator did not converge")
	ErrInsufficientData = errors.New("insufficient data for level")

	// Study errors
	ErrInvalidStudy = errors.New("invalid study definition")
	ErrNotFound     = errors.New("resource not found")
)

// MissingFieldError reports a column that is absent or empty for a respondent/task.
type MissingFieldError struct {
	Column     string
	Respondent string
	Task       int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q (respondent %s, task %d)", e.Column, e.Respondent, e.Task)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// UnknownLevelError reports a cell whose text matches no level of its attribute.
type UnknownLevelError struct {
	Attribute  string
	Column     string
	Value      string
	Respondent string
	Task       int
}

func (e *UnknownLevelError) Error() string {
	return fmt.Sprintf("unknown level %q for attribute %s in column %q (respondent %s, task %d)",
		e.Value, e.Attribute, e.Column, e.Respondent, e.Task)
}

func (e *UnknownLevelError) Is(target error) bool {
	return target == ErrUnknownLevel || target == ErrMissingField
}

// InvalidChoiceError reports a Task<N>_choice value outside {A, B}.
type InvalidChoiceError struct {
	Column     string
	Value      string
	Respondent string
	Task       int
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid choice %q in %q (respondent %s, task %d): want A or B",
		e.Value, e.Column, e.Respondent, e.Task)
}

func (e *InvalidChoiceError) Is(target error) bool { return target == ErrInvalidChoice }

// RankDeficiencyError reports a design matrix that cannot identify every column.
type RankDeficiencyError struct {
	Columns []string
	Rank    int
	Rows    int
}

func (e *RankDeficiencyError) Error() string {
	return fmt.Sprintf("rank-deficient design: rank %d < %d columns over %d rows [%s]",
		e.Rank, len(e.Columns), e.Rows, strings.Join(e.Columns, ", "))
}

func (e *RankDeficiencyError) Is(target error) bool { return target == ErrRankDeficiency }

// NonConvergenceError carries enough solver state to diagnose a failed fit.
type NonConvergenceError struct {
	Iterations   int
	GradientNorm float64
	Reason       string
}

func (e *NonConvergenceError) Error() string {
	msg := fmt.Sprintf("no convergence after %d iterations (gradient norm %.3g)", e.Iterations, e.GradientNorm)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *NonConvergenceError) Is(target error) bool { return target == ErrNonConvergence }

// InsufficientDataError annotates a level observed fewer times than the configured minimum.
// It is attached to results, not returned as a failure.
type InsufficientDataError struct {
	Level   string
	Count   int
	Minimum int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("level %s observed %d times (minimum %d)", e.Level, e.Count, e.Minimum)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewStudyError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidStudy, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInputError reports errors caused by malformed survey rows.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingField) || errors.Is(err, ErrInvalidChoice)
}

// IsEstimationError reports errors raised while fitting the choice model.
func IsEstimationError(err error) bool {
	return errors.Is(err, ErrRankDeficiency) || errors.Is(err, ErrNonConvergence)
}
