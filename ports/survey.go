package ports

import (
	"context"

	"sherockets/domain/dataset"
)

// SurveyReader loads a wide survey export into memory
type SurveyReader interface {
	Read(ctx context.Context) (*dataset.Table, error)
}
