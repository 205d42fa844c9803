// Package model holds the workflow aggregate: an immutable, ordered collection
// of nodes, edges and swimlanes. Every mutation returns a new *WorkflowModel
// with a bumped UpdatedAt; the receiver is never modified.
package model

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/rendis/flowgraph/pkg/schema"
)

// DefaultVersion is the model format version written by this package.
const DefaultVersion = "1.0"

// Metadata describes a model.
type Metadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WorkflowModel is the aggregate root. Nodes stored in it must not be mutated
// in place; Clone them and call UpdateNode instead.
type WorkflowModel struct {
	meta  Metadata
	nodes *orderedmap.OrderedMap[string, schema.Node]
	edges *orderedmap.OrderedMap[string, schema.Edge]
	lanes *orderedmap.OrderedMap[string, schema.Swimlane]
	now   func() time.Time
}

// Option configures a new model.
type Option func(*WorkflowModel)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *WorkflowModel) { m.now = now }
}

// WithID sets the model ID.
func WithID(id string) Option {
	return func(m *WorkflowModel) { m.meta.ID = id }
}

// WithName sets the model display name.
func WithName(name string) Option {
	return func(m *WorkflowModel) { m.meta.Name = name }
}

// New creates an empty model.
func New(opts ...Option) *WorkflowModel {
	m := &WorkflowModel{
		nodes: orderedmap.New[string, schema.Node](),
		edges: orderedmap.New[string, schema.Edge](),
		lanes: orderedmap.New[string, schema.Swimlane](),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	ts := m.now()
	m.meta.Version = DefaultVersion
	m.meta.CreatedAt = ts
	m.meta.UpdatedAt = ts
	return m
}

// --- Reads ---

// Metadata returns the model metadata.
func (m *WorkflowModel) Metadata() Metadata { return m.meta }

// Node returns the node with id.
func (m *WorkflowModel) Node(id string) (schema.Node, bool) {
	return m.nodes.Get(id)
}

// HasNode reports whether id names a node of the model.
func (m *WorkflowModel) HasNode(id string) bool {
	_, ok := m.nodes.Get(id)
	return ok
}

// NodeCount returns the number of nodes.
func (m *WorkflowModel) NodeCount() int { return m.nodes.Len() }

// Nodes returns the nodes in insertion order.
func (m *WorkflowModel) Nodes() []schema.Node {
	out := make([]schema.Node, 0, m.nodes.Len())
	for p := m.nodes.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// NodeIDs returns node IDs in insertion order.
func (m *WorkflowModel) NodeIDs() []string {
	out := make([]string, 0, m.nodes.Len())
	for p := m.nodes.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// NodesOfType returns the nodes of kind t in insertion order.
func (m *WorkflowModel) NodesOfType(t schema.NodeType) []schema.Node {
	var out []schema.Node
	for p := m.nodes.Oldest(); p != nil; p = p.Next() {
		if p.Value.Type() == t {
			out = append(out, p.Value)
		}
	}
	return out
}

// Edge returns the edge with id.
func (m *WorkflowModel) Edge(id string) (schema.Edge, bool) {
	return m.edges.Get(id)
}

// Edges returns the edges in insertion order.
func (m *WorkflowModel) Edges() []schema.Edge {
	out := make([]schema.Edge, 0, m.edges.Len())
	for p := m.edges.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// OutgoingEdges returns the edges whose source is nodeID.
func (m *WorkflowModel) OutgoingEdges(nodeID string) []schema.Edge {
	var out []schema.Edge
	for p := m.edges.Oldest(); p != nil; p = p.Next() {
		if p.Value.Source == nodeID {
			out = append(out, p.Value)
		}
	}
	return out
}

// IncomingEdges returns the edges whose target is nodeID.
func (m *WorkflowModel) IncomingEdges(nodeID string) []schema.Edge {
	var out []schema.Edge
	for p := m.edges.Oldest(); p != nil; p = p.Next() {
		if p.Value.Target == nodeID {
			out = append(out, p.Value)
		}
	}
	return out
}

// Swimlane returns the swimlane with id.
func (m *WorkflowModel) Swimlane(id string) (schema.Swimlane, bool) {
	lane, ok := m.lanes.Get(id)
	if !ok {
		return schema.Swimlane{}, false
	}
	return lane.Clone(), true
}

// Swimlanes returns copies of the swimlanes in insertion order.
func (m *WorkflowModel) Swimlanes() []schema.Swimlane {
	out := make([]schema.Swimlane, 0, m.lanes.Len())
	for p := m.lanes.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value.Clone())
	}
	return out
}

// SwimlaneOf returns the swimlane containing nodeID.
func (m *WorkflowModel) SwimlaneOf(nodeID string) (schema.Swimlane, bool) {
	for p := m.lanes.Oldest(); p != nil; p = p.Next() {
		if p.Value.Contains(nodeID) {
			return p.Value.Clone(), true
		}
	}
	return schema.Swimlane{}, false
}

// --- Node mutations ---

// AddNode returns a model with n appended.
func (m *WorkflowModel) AddNode(n schema.Node) (*WorkflowModel, error) {
	if n == nil || n.Common().ID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "node must have an id")
	}
	id := n.Common().ID
	if m.HasNode(id) {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "node %q already exists", id).WithNode(id)
	}
	next := m.copy()
	next.nodes.Set(id, n)
	return next.touch(), nil
}

// UpdateNode returns a model with the node of the same ID replaced by n,
// keeping its position in the order.
func (m *WorkflowModel) UpdateNode(n schema.Node) (*WorkflowModel, error) {
	if n == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "node is nil")
	}
	id := n.Common().ID
	if !m.HasNode(id) {
		return nil, nodeNotFound(id)
	}
	next := m.copy()
	next.nodes.Set(id, n)
	return next.touch(), nil
}

// RemoveNode returns a model without the node, its incident edges and its
// swimlane membership.
func (m *WorkflowModel) RemoveNode(id string) (*WorkflowModel, error) {
	if !m.HasNode(id) {
		return nil, nodeNotFound(id)
	}
	next := m.copy()
	next.nodes.Delete(id)

	for _, e := range m.Edges() {
		if e.Source == id || e.Target == id {
			next.edges.Delete(e.ID)
		}
	}
	next.dropFromLanes(id)
	return next.touch(), nil
}

// --- Edge mutations ---

// AddEdge returns a model with e appended. Both endpoints must exist.
func (m *WorkflowModel) AddEdge(e schema.Edge) (*WorkflowModel, error) {
	if e.ID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "edge must have an id")
	}
	if _, exists := m.edges.Get(e.ID); exists {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "edge %q already exists", e.ID)
	}
	if !m.HasNode(e.Source) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q source %q does not exist", e.ID, e.Source)
	}
	if !m.HasNode(e.Target) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q target %q does not exist", e.ID, e.Target)
	}
	next := m.copy()
	next.edges.Set(e.ID, e)
	return next.touch(), nil
}

// UpdateEdge replaces the edge with the same ID.
func (m *WorkflowModel) UpdateEdge(e schema.Edge) (*WorkflowModel, error) {
	if _, exists := m.edges.Get(e.ID); !exists {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q does not exist", e.ID)
	}
	if !m.HasNode(e.Source) || !m.HasNode(e.Target) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q endpoints must exist", e.ID)
	}
	next := m.copy()
	next.edges.Set(e.ID, e)
	return next.touch(), nil
}

// RemoveEdge returns a model without the edge.
func (m *WorkflowModel) RemoveEdge(id string) (*WorkflowModel, error) {
	if _, exists := m.edges.Get(id); !exists {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q does not exist", id)
	}
	next := m.copy()
	next.edges.Delete(id)
	return next.touch(), nil
}

// --- Swimlane mutations ---

// AddSwimlane returns a model with lane appended. Its members must exist and
// are removed from whatever lane held them before.
func (m *WorkflowModel) AddSwimlane(lane schema.Swimlane) (*WorkflowModel, error) {
	if lane.ID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "swimlane must have an id")
	}
	if _, exists := m.lanes.Get(lane.ID); exists {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "swimlane %q already exists", lane.ID)
	}
	for _, id := range lane.ContainedNodes {
		if !m.HasNode(id) {
			return nil, nodeNotFound(id)
		}
	}

	next := m.copy()
	lane = lane.Clone()
	lane.ContainedNodes = dedupe(lane.ContainedNodes)
	for _, id := range lane.ContainedNodes {
		next.dropFromLanes(id)
	}
	next.lanes.Set(lane.ID, lane)
	return next.touch(), nil
}

// RemoveSwimlane returns a model without the lane. Its nodes stay in the model.
func (m *WorkflowModel) RemoveSwimlane(id string) (*WorkflowModel, error) {
	if _, exists := m.lanes.Get(id); !exists {
		return nil, swimlaneNotFound(id)
	}
	next := m.copy()
	next.lanes.Delete(id)
	return next.touch(), nil
}

// AssignToSwimlane moves nodeID into laneID, leaving any previous lane.
func (m *WorkflowModel) AssignToSwimlane(nodeID, laneID string) (*WorkflowModel, error) {
	if !m.HasNode(nodeID) {
		return nil, nodeNotFound(nodeID)
	}
	lane, ok := m.lanes.Get(laneID)
	if !ok {
		return nil, swimlaneNotFound(laneID)
	}
	if lane.Contains(nodeID) {
		return m, nil
	}

	next := m.copy()
	next.dropFromLanes(nodeID)
	lane, _ = next.lanes.Get(laneID)
	lane = lane.Clone()
	lane.ContainedNodes = append(lane.ContainedNodes, nodeID)
	next.lanes.Set(laneID, lane)
	return next.touch(), nil
}

// UnassignFromSwimlane removes nodeID from its lane, if any.
func (m *WorkflowModel) UnassignFromSwimlane(nodeID string) *WorkflowModel {
	if _, ok := m.SwimlaneOf(nodeID); !ok {
		return m
	}
	next := m.copy()
	next.dropFromLanes(nodeID)
	return next.touch()
}

// --- internals ---

func (m *WorkflowModel) copy() *WorkflowModel {
	next := &WorkflowModel{
		meta:  m.meta,
		nodes: orderedmap.New[string, schema.Node](m.nodes.Len()),
		edges: orderedmap.New[string, schema.Edge](m.edges.Len()),
		lanes: orderedmap.New[string, schema.Swimlane](m.lanes.Len()),
		now:   m.now,
	}
	for p := m.nodes.Oldest(); p != nil; p = p.Next() {
		next.nodes.Set(p.Key, p.Value)
	}
	for p := m.edges.Oldest(); p != nil; p = p.Next() {
		next.edges.Set(p.Key, p.Value)
	}
	for p := m.lanes.Oldest(); p != nil; p = p.Next() {
		next.lanes.Set(p.Key, p.Value)
	}
	return next
}

func (m *WorkflowModel) touch() *WorkflowModel {
	ts := m.now()
	if !ts.After(m.meta.UpdatedAt) {
		ts = m.meta.UpdatedAt.Add(time.Nanosecond)
	}
	m.meta.UpdatedAt = ts
	return m
}

// dropFromLanes removes nodeID from every lane. Only called on a fresh copy.
func (m *WorkflowModel) dropFromLanes(nodeID string) {
	for p := m.lanes.Oldest(); p != nil; p = p.Next() {
		if !p.Value.Contains(nodeID) {
			continue
		}
		lane := p.Value.Clone()
		lane.ContainedNodes = without(lane.ContainedNodes, nodeID)
		m.lanes.Set(p.Key, lane)
	}
}

func nodeNotFound(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "node %q does not exist", id).WithNode(id)
}

func swimlaneNotFound(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "swimlane %q does not exist", id)
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
