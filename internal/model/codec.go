package model

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// document is the persisted JSON shape of a model.
type document struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Version   string            `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Nodes     []json.RawMessage `json:"nodes"`
	Edges     []schema.Edge     `json:"edges"`
	Swimlanes []schema.Swimlane `json:"swimlanes"`
}

// Encode serializes m. Collections keep insertion order.
func Encode(m *WorkflowModel) ([]byte, error) {
	doc := document{
		ID:        m.meta.ID,
		Name:      m.meta.Name,
		Version:   m.meta.Version,
		CreatedAt: m.meta.CreatedAt,
		UpdatedAt: m.meta.UpdatedAt,
		Nodes:     make([]json.RawMessage, 0, m.nodes.Len()),
		Edges:     m.Edges(),
		Swimlanes: m.Swimlanes(),
	}
	for p := m.nodes.Oldest(); p != nil; p = p.Next() {
		raw, err := json.Marshal(p.Value)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode node %q", p.Key).
				WithNode(p.Key).WithCause(err)
		}
		doc.Nodes = append(doc.Nodes, raw)
	}
	return json.Marshal(doc)
}

// Decode parses a model document. Unlike AddEdge, it keeps edges whose
// endpoints are missing so that validation can report them. Duplicate node,
// edge or swimlane ids are rejected.
func Decode(data []byte, opts ...Option) (*WorkflowModel, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "malformed workflow document").WithCause(err)
	}

	m := New(opts...)
	if doc.ID != "" {
		m.meta.ID = doc.ID
	}
	if doc.Name != "" {
		m.meta.Name = doc.Name
	}
	if doc.Version != "" {
		m.meta.Version = doc.Version
	}
	if !doc.CreatedAt.IsZero() {
		m.meta.CreatedAt = doc.CreatedAt
	}
	if !doc.UpdatedAt.IsZero() {
		m.meta.UpdatedAt = doc.UpdatedAt
	}

	for i, raw := range doc.Nodes {
		n, err := schema.UnmarshalNode(raw)
		if err != nil {
			return nil, err
		}
		id := n.Common().ID
		if id == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has no id", i)
		}
		if _, dup := m.nodes.Get(id); dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate node id %q", id).WithNode(id)
		}
		m.nodes.Set(id, n)
	}
	for _, e := range doc.Edges {
		if _, dup := m.edges.Get(e.ID); dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate edge id %q", e.ID)
		}
		m.edges.Set(e.ID, e)
	}
	for _, lane := range doc.Swimlanes {
		if _, dup := m.lanes.Get(lane.ID); dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate swimlane id %q", lane.ID)
		}
		m.lanes.Set(lane.ID, lane.Clone())
	}
	return m, nil
}

// MarshalJSON implements json.Marshaler via Encode.
func (m *WorkflowModel) MarshalJSON() ([]byte, error) {
	return Encode(m)
}

// UnmarshalJSON implements json.Unmarshaler via Decode.
func (m *WorkflowModel) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}
