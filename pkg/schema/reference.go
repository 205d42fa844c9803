package schema

// ReferenceCreationResult reports the outcome of creating one reference node.
type ReferenceCreationResult struct {
	Success       bool   `json:"success"`
	ReferenceNode Node   `json:"referenceNode,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BatchReferenceError records why one source in a batch was skipped.
type BatchReferenceError struct {
	NodeID string `json:"nodeId"`
	Error  string `json:"error"`
}

// BatchReferenceCreationResult is the partial-success report of a batch.
// Success is true only when every requested source produced a reference.
type BatchReferenceCreationResult struct {
	Success        bool                  `json:"success"`
	ReferenceNodes []Node                `json:"referenceNodes"`
	Errors         []BatchReferenceError `json:"errors,omitempty"`
}

// ReferenceEditResult reports the outcome of editing a reference node.
type ReferenceEditResult struct {
	Success     bool   `json:"success"`
	UpdatedNode Node   `json:"updatedNode,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ReferenceStatistics summarizes the references of a model.
type ReferenceStatistics struct {
	TotalReferences       int              `json:"totalReferences"`
	SourcesWithReferences int              `json:"sourcesWithReferences"`
	DanglingReferences    int              `json:"danglingReferences"`
	ByType                map[NodeType]int `json:"byType"`
}
