package store

import (
	"context"

	"github.com/rendis/flowgraph/internal/model"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Models
	SaveModel(ctx context.Context, m *model.WorkflowModel) error
	GetModel(ctx context.Context, id string) (*model.WorkflowModel, error)
	ListModels(ctx context.Context, filter ModelFilter) ([]*ModelSummary, error)
	DeleteModel(ctx context.Context, id string) error

	// Validation history (append-only)
	AppendValidation(ctx context.Context, run *ValidationRun) error
	ListValidations(ctx context.Context, modelID string, limit int) ([]*ValidationRun, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
