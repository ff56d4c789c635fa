package repository

import (
	"context"

	"github.com/oneprompteu/oneprompt/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// SessionID restricts the listing to one session when non-empty.
	SessionID string
}

// RunRepository stores execution audit records.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
}
