package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// ModelSummary is a persisted model without its document.
type ModelSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Version   string    `json:"version"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelFilter narrows ListModels. Zero values match everything.
type ModelFilter struct {
	NameContains string
	Limit        int
	Offset       int
}

// ValidationRun is one entry of a model's validation history. Sequence is
// assigned on append and is contiguous per model.
type ValidationRun struct {
	ID        string          `json:"id"`
	ModelID   string          `json:"model_id"`
	Sequence  int64           `json:"sequence"`
	Valid     bool            `json:"valid"`
	CanSave   bool            `json:"can_save"`
	Errors    int             `json:"errors"`
	Warnings  int             `json:"warnings"`
	Report    json.RawMessage `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewValidationRun summarizes a validation result for modelID. canSave is
// passed in so this package stays independent of the validator.
func NewValidationRun(modelID string, result *schema.WorkflowValidationResult, canSave bool) (*ValidationRun, error) {
	report, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &ValidationRun{
		ModelID:  modelID,
		Valid:    result.Valid(),
		CanSave:  canSave,
		Errors:   len(result.Errors),
		Warnings: len(result.Warnings),
		Report:   report,
	}, nil
}
