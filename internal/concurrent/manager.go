package concurrent

import (
	"log/slog"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/rendis/flowgraph/internal/graph"
	"github.com/rendis/flowgraph/internal/ids"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Id prefixes used by the manager.
const (
	PrefixProcess = "concurrent_process"
	PrefixBranch  = "concurrent_branch"
)

// Manager owns one concurrent region: its raw data plus a cache of the member
// nodes and the edges among them. It is not safe for concurrent mutation.
type Manager struct {
	data   schema.ConcurrentProcessData
	nodes  map[string]schema.Node
	edges  *orderedmap.OrderedMap[string, schema.Edge]
	gen    ids.Generator
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithGenerator sets the id generator for the region and its branches.
func WithGenerator(gen ids.Generator) Option {
	return func(m *Manager) { m.gen = gen }
}

// WithLogger sets the logger used for mutation events at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an empty region delimited by startNodeID and endNodeID.
func NewManager(startNodeID, endNodeID string, opts ...Option) *Manager {
	m := newManager(opts...)
	m.data = schema.ConcurrentProcessData{
		ID:                    m.gen.Next(PrefixProcess),
		ConcurrentStartNodeID: startNodeID,
		ConcurrentEndNodeID:   endNodeID,
		Branches:              []schema.ConcurrentBranch{},
		ContainedNodeIDs:      []string{},
	}
	return m
}

func newManager(opts ...Option) *Manager {
	m := &Manager{
		nodes: make(map[string]schema.Node),
		edges: orderedmap.New[string, schema.Edge](),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.gen == nil {
		m.gen = ids.NewCounter()
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	return m
}

// ID returns the region id.
func (m *Manager) ID() string { return m.data.ID }

// StartNodeID returns the node that opens the region.
func (m *Manager) StartNodeID() string { return m.data.ConcurrentStartNodeID }

// EndNodeID returns the node that closes the region.
func (m *Manager) EndNodeID() string { return m.data.ConcurrentEndNodeID }

// ContainedNodeIDs returns the member ids in enrolment order.
func (m *Manager) ContainedNodeIDs() []string {
	return slices.Clone(m.data.ContainedNodeIDs)
}

// Contains reports whether id is a member.
func (m *Manager) Contains(id string) bool {
	return slices.Contains(m.data.ContainedNodeIDs, id)
}

// Node returns a cached member node. Members enrolled by id only have none.
func (m *Manager) Node(id string) (schema.Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// --- Members ---

// CanAddNode reports whether n may join the region.
func (m *Manager) CanAddNode(n schema.Node) bool {
	return n != nil && !schema.IsIllegalInConcurrent(n.Type())
}

// AddNode enrols n and caches it. Begin, End and Exception nodes are rejected
// with ErrCodeIllegalMember. Adding a member again refreshes its cached node.
func (m *Manager) AddNode(n schema.Node) error {
	if n == nil || n.Common().ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "node must have an id")
	}
	id := n.Common().ID
	if !m.CanAddNode(n) {
		return schema.NewErrorf(schema.ErrCodeIllegalMember,
			"%s node %q cannot be part of a concurrent region", schema.TypeLabel(n.Type()), schema.DisplayName(n)).
			WithNode(id).
			WithDetails(map[string]any{"nodeType": n.Type(), "regionId": m.data.ID})
	}
	m.nodes[id] = n
	m.enrol(id)
	m.logger.Debug("concurrent member added", slog.String("region_id", m.data.ID), slog.String(logging.AttrNodeID, id))
	return nil
}

// RemoveNode drops a member from the region, its branches and the edge cache.
func (m *Manager) RemoveNode(id string) error {
	if !m.Contains(id) {
		return memberNotFound(id, m.data.ID)
	}
	m.data.ContainedNodeIDs = without(m.data.ContainedNodeIDs, id)
	for i := range m.data.Branches {
		m.data.Branches[i] = dropFromBranch(m.data.Branches[i], id)
	}
	delete(m.nodes, id)
	for _, e := range m.Edges() {
		if e.Source == id || e.Target == id {
			m.edges.Delete(e.ID)
		}
	}
	m.logger.Debug("concurrent member removed", slog.String("region_id", m.data.ID), slog.String(logging.AttrNodeID, id))
	return nil
}

func (m *Manager) enrol(id string) {
	if !m.Contains(id) {
		m.data.ContainedNodeIDs = append(m.data.ContainedNodeIDs, id)
	}
}

// --- Edges ---

// AddEdge caches e. Edges with an endpoint outside the region are kept but
// ignored by every analysis.
func (m *Manager) AddEdge(e schema.Edge) error {
	if e.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "edge must have an id")
	}
	if _, exists := m.edges.Get(e.ID); exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "edge %q already exists", e.ID)
	}
	m.edges.Set(e.ID, e)
	return nil
}

// RemoveEdge drops a cached edge.
func (m *Manager) RemoveEdge(id string) error {
	if _, ok := m.edges.Delete(id); !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "edge %q does not exist", id)
	}
	return nil
}

// Edges returns the cached edges in insertion order.
func (m *Manager) Edges() []schema.Edge {
	out := make([]schema.Edge, 0, m.edges.Len())
	for p := m.edges.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// --- Branches ---

// CreateBranch appends an empty branch.
func (m *Manager) CreateBranch(name string) schema.ConcurrentBranch {
	b := schema.ConcurrentBranch{ID: m.gen.Next(PrefixBranch), Name: name, NodeIDs: []string{}}
	m.data.Branches = append(m.data.Branches, b)
	return b.Clone()
}

// Branch returns a copy of the branch.
func (m *Manager) Branch(id string) (schema.ConcurrentBranch, bool) {
	i := m.branchIndex(id)
	if i < 0 {
		return schema.ConcurrentBranch{}, false
	}
	return m.data.Branches[i].Clone(), true
}

// Branches returns copies of every branch in creation order.
func (m *Manager) Branches() []schema.ConcurrentBranch {
	out := make([]schema.ConcurrentBranch, len(m.data.Branches))
	for i, b := range m.data.Branches {
		out[i] = b.Clone()
	}
	return out
}

// UpdateBranch replaces the branch with the same id. Its nodes are enrolled
// in the region and leave any other branch; start and end must be among them.
func (m *Manager) UpdateBranch(b schema.ConcurrentBranch) error {
	i := m.branchIndex(b.ID)
	if i < 0 {
		return branchNotFound(b.ID)
	}
	b = b.Clone()
	b.NodeIDs = dedupe(b.NodeIDs)
	for _, id := range []string{b.StartNodeID, b.EndNodeID} {
		if id != "" && !slices.Contains(b.NodeIDs, id) {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"branch %q boundary node %q is not one of its nodes", b.ID, id).WithNode(id)
		}
	}
	for _, id := range b.NodeIDs {
		if n, ok := m.nodes[id]; ok && !m.CanAddNode(n) {
			return schema.NewErrorf(schema.ErrCodeIllegalMember,
				"%s node %q cannot be part of a concurrent region", schema.TypeLabel(n.Type()), schema.DisplayName(n)).WithNode(id)
		}
	}

	for _, id := range b.NodeIDs {
		m.enrol(id)
		m.leaveOtherBranches(id, b.ID)
	}
	m.data.Branches[i] = b
	return nil
}

// DeleteBranch removes the branch. Its nodes stay in the region.
func (m *Manager) DeleteBranch(id string) error {
	i := m.branchIndex(id)
	if i < 0 {
		return branchNotFound(id)
	}
	m.data.Branches = slices.Delete(m.data.Branches, i, i+1)
	return nil
}

// AddNodeToBranch places nodeID in a branch, enrolling it in the region first
// when needed. A node belongs to at most one branch.
func (m *Manager) AddNodeToBranch(branchID, nodeID string) error {
	i := m.branchIndex(branchID)
	if i < 0 {
		return branchNotFound(branchID)
	}
	if n, ok := m.nodes[nodeID]; ok && !m.CanAddNode(n) {
		return schema.NewErrorf(schema.ErrCodeIllegalMember,
			"%s node %q cannot be part of a concurrent region", schema.TypeLabel(n.Type()), schema.DisplayName(n)).WithNode(nodeID)
	}
	m.enrol(nodeID)
	if slices.Contains(m.data.Branches[i].NodeIDs, nodeID) {
		return nil
	}
	m.leaveOtherBranches(nodeID, branchID)
	m.data.Branches[i].NodeIDs = append(m.data.Branches[i].NodeIDs, nodeID)
	return nil
}

// RemoveNodeFromBranch takes nodeID out of a branch. It stays in the region.
func (m *Manager) RemoveNodeFromBranch(branchID, nodeID string) error {
	i := m.branchIndex(branchID)
	if i < 0 {
		return branchNotFound(branchID)
	}
	if !slices.Contains(m.data.Branches[i].NodeIDs, nodeID) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q is not in branch %q", nodeID, branchID).WithNode(nodeID)
	}
	m.data.Branches[i] = dropFromBranch(m.data.Branches[i], nodeID)
	return nil
}

func (m *Manager) leaveOtherBranches(nodeID, keep string) {
	for i := range m.data.Branches {
		if m.data.Branches[i].ID != keep {
			m.data.Branches[i] = dropFromBranch(m.data.Branches[i], nodeID)
		}
	}
}

func (m *Manager) branchIndex(id string) int {
	return slices.IndexFunc(m.data.Branches, func(b schema.ConcurrentBranch) bool { return b.ID == id })
}

// --- Analysis ---

// Validate runs the structural soundness check of the region.
func (m *Manager) Validate() schema.ConcurrentValidationResult {
	return ValidateRegion(m.data.ContainedNodeIDs, m.Edges(), m)
}

// AnalyzeStructure classifies the members. Its IsValid is the strict shape
// query (at least one start and one end, nothing disconnected) and may be
// false for a region that Validate accepts.
func (m *Manager) AnalyzeStructure() graph.Structure {
	return graph.AnalyzeStructure(m.Edges(), m.data.ContainedNodeIDs)
}

// TopologicalOrder returns the members in dependency order, or ok=false when
// the region is cyclic.
func (m *Manager) TopologicalOrder() (order []string, ok bool) {
	return graph.TopologicalSort(m.Edges(), m.data.ContainedNodeIDs)
}

// HasCycle reports whether the members form a cycle.
func (m *Manager) HasCycle() bool {
	return graph.DetectCycle(m.Edges(), m.data.ContainedNodeIDs).HasCycle
}

// CyclePath returns the first cycle found, closed by repeating its first id,
// or nil.
func (m *Manager) CyclePath() []string {
	return graph.DetectCycle(m.Edges(), m.data.ContainedNodeIDs).CyclePath
}

// --- Import / export ---

// ExportData returns a deep copy of the raw region data.
func (m *Manager) ExportData() schema.ConcurrentProcessData {
	return m.data.Clone()
}

// ImportData replaces the region data. Branch nodes missing from
// ContainedNodeIDs are enrolled. Cached nodes that are no longer members are
// dropped together with every cached edge touching them.
func (m *Manager) ImportData(d schema.ConcurrentProcessData) error {
	seen := make(map[string]bool, len(d.Branches))
	for _, b := range d.Branches {
		if b.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, "branch must have an id")
		}
		if seen[b.ID] {
			return schema.NewErrorf(schema.ErrCodeConflict, "branch %q imported twice", b.ID)
		}
		seen[b.ID] = true
	}

	next := d.Clone()
	next.ContainedNodeIDs = dedupe(next.ContainedNodeIDs)
	if next.Branches == nil {
		next.Branches = []schema.ConcurrentBranch{}
	}
	for _, b := range next.Branches {
		for _, id := range b.NodeIDs {
			if !slices.Contains(next.ContainedNodeIDs, id) {
				next.ContainedNodeIDs = append(next.ContainedNodeIDs, id)
			}
		}
	}
	m.data = next

	dropped := make(map[string]bool)
	for id := range m.nodes {
		if !m.Contains(id) {
			delete(m.nodes, id)
			dropped[id] = true
		}
	}
	for _, e := range m.Edges() {
		if dropped[e.Source] || dropped[e.Target] {
			m.edges.Delete(e.ID)
		}
	}
	return nil
}

// Import builds a manager from exported data.
func Import(d schema.ConcurrentProcessData, opts ...Option) (*Manager, error) {
	m := newManager(opts...)
	if err := m.ImportData(d); err != nil {
		return nil, err
	}
	return m, nil
}

// --- helpers ---

func memberNotFound(id, regionID string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "node %q is not part of region %q", id, regionID).WithNode(id)
}

func branchNotFound(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "branch %q does not exist", id)
}

func dropFromBranch(b schema.ConcurrentBranch, id string) schema.ConcurrentBranch {
	b.NodeIDs = without(b.NodeIDs, id)
	if b.StartNodeID == id {
		b.StartNodeID = ""
	}
	if b.EndNodeID == id {
		b.EndNodeID = ""
	}
	return b
}

func without(list []string, drop string) []string {
	out := make([]string, 0, len(list))
	for _, id := range list {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, id := range list {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
