package ports

import (
	"context"

	"sherockets/domain/core"
	"sherockets/domain/run"
)

// RunRepository persists estimation runs. Get returns an error matching
// core.ErrNotFound when the id is unknown.
type RunRepository interface {
	Save(ctx context.Context, r *run.Run) error
	Get(ctx context.Context, id core.RunID) (*run.Run, error)
	List(ctx context.Context, filters run.Filters) ([]run.Summary, error)
}
