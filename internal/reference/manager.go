// Package reference manages reference nodes: restricted-edit clones that
// mirror a source node except for name and stepDisplay.
package reference

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/rendis/flowgraph/internal/ids"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// NameSuffix is appended to the source name of a new reference.
const NameSuffix = " (Reference)"

// IsPropertyEditable reports whether a reference node may change property.
func IsPropertyEditable(property string) bool {
	return slices.Contains(schema.ReferenceEditableProperties, property)
}

// Manager owns a workflow model and the index source id → reference ids.
// Every mutation swaps in a new model. It is not safe for concurrent mutation.
type Manager struct {
	model  *model.WorkflowModel
	index  map[string][]string
	gen    ids.Generator
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithGenerator sets the generator for reference node ids.
func WithGenerator(gen ids.Generator) Option {
	return func(m *Manager) { m.gen = gen }
}

// WithLogger sets the logger used for mutation events at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager over wm. A nil model starts empty.
func NewManager(wm *model.WorkflowModel, opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if m.gen == nil {
		m.gen = ids.NewCounter()
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	if wm == nil {
		wm = model.New()
	}
	m.SetModel(wm)
	return m
}

// SetModel swaps the model and rebuilds the index.
func (m *Manager) SetModel(wm *model.WorkflowModel) {
	m.model = wm
	m.index = make(map[string][]string)
	for _, n := range wm.Nodes() {
		if src := schema.SourceNodeID(n); src != "" {
			m.index[src] = append(m.index[src], n.Common().ID)
		}
	}
}

// Model returns the current model.
func (m *Manager) Model() *model.WorkflowModel { return m.model }

// --- Creation ---

// CanCreateReference reports whether nodeID exists, is not a reference and
// has a referenceable kind.
func (m *Manager) CanCreateReference(nodeID string) bool {
	return m.checkSource(nodeID) == nil
}

func (m *Manager) checkSource(nodeID string) error {
	n, ok := m.model.Node(nodeID)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q does not exist", nodeID).WithNode(nodeID)
	}
	if schema.IsReference(n) {
		return schema.NewErrorf(schema.ErrCodeNotReferenceable,
			"node %q is a reference and cannot be referenced", schema.DisplayName(n)).WithNode(nodeID)
	}
	if !schema.IsReferenceableType(n.Type()) {
		return schema.NewErrorf(schema.ErrCodeNotReferenceable,
			"%s nodes cannot be referenced", schema.TypeLabel(n.Type())).
			WithNode(nodeID).
			WithDetails(map[string]any{"nodeType": n.Type()})
	}
	return nil
}

// CreateReference clones the source into a new reference node and inserts it
// into the model.
func (m *Manager) CreateReference(sourceID string) (schema.Node, error) {
	if err := m.checkSource(sourceID); err != nil {
		return nil, err
	}
	source, _ := m.model.Node(sourceID)

	ref := source.Clone()
	c := ref.Common()
	c.ID = m.nextID(source.Type())
	c.Name = source.Common().Name + NameSuffix
	c.Reference = &schema.ReferenceInfo{
		SourceNodeID:       sourceID,
		EditableProperties: slices.Clone(schema.ReferenceEditableProperties),
	}

	next, err := m.model.AddNode(ref)
	if err != nil {
		return nil, err
	}
	m.model = next
	m.index[sourceID] = append(m.index[sourceID], c.ID)
	m.logger.Debug("reference created", slog.String(logging.AttrNodeID, c.ID), slog.String("source_id", sourceID))
	return ref.Clone(), nil
}

// nextID draws ids until one is unused; generators shared with other
// factories may already have issued the first candidates.
func (m *Manager) nextID(t schema.NodeType) string {
	prefix := schema.IDPrefix(t) + "_ref"
	for {
		id := m.gen.Next(prefix)
		if !m.model.HasNode(id) {
			return id
		}
	}
}

// CreateBatchReferences creates one reference per source id. A failing id is
// recorded and the batch continues.
func (m *Manager) CreateBatchReferences(sourceIDs []string) schema.BatchReferenceCreationResult {
	res := schema.BatchReferenceCreationResult{ReferenceNodes: []schema.Node{}}
	for _, id := range sourceIDs {
		ref, err := m.CreateReference(id)
		if err != nil {
			res.Errors = append(res.Errors, schema.BatchReferenceError{NodeID: id, Error: err.Error()})
			continue
		}
		res.ReferenceNodes = append(res.ReferenceNodes, ref)
	}
	res.Success = len(res.Errors) == 0
	return res
}

// --- Editing ---

// EditReferenceNode sets name or stepDisplay on a reference. Non-string names
// are formatted with fmt.Sprint.
func (m *Manager) EditReferenceNode(refID, property string, value any) (schema.Node, error) {
	n, err := m.reference(refID)
	if err != nil {
		return nil, err
	}
	if !IsPropertyEditable(property) {
		return nil, schema.NewErrorf(schema.ErrCodePropertyNotEditable,
			"property %q is not allowed on reference nodes; only %v can be edited", property, schema.ReferenceEditableProperties).
			WithNode(refID).
			WithDetails(map[string]any{"property": property})
	}

	updated := n.Clone()
	c := updated.Common()
	switch property {
	case schema.EditableName:
		if s, ok := value.(string); ok {
			c.Name = s
		} else {
			c.Name = fmt.Sprint(value)
		}
	case schema.EditableStepDisplay:
		if _, ok := value.(bool); !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"stepDisplay must be a boolean, got %T", value).
				WithNode(refID).
				WithDetails(map[string]any{"property": property})
		}
		if c.Properties == nil {
			c.Properties = make(map[string]any, 1)
		}
		c.Properties[schema.PropStepDisplay] = value
	}

	next, err := m.model.UpdateNode(updated)
	if err != nil {
		return nil, err
	}
	m.model = next
	m.logger.Debug("reference edited", slog.String(logging.AttrNodeID, refID), slog.String("property", property))
	return updated.Clone(), nil
}

// SyncReferenceWithSource re-copies every field of the source into the
// reference, keeping the reference's id, overlay, name and stepDisplay.
func (m *Manager) SyncReferenceWithSource(refID string) (schema.Node, error) {
	n, err := m.reference(refID)
	if err != nil {
		return nil, err
	}
	sourceID := schema.SourceNodeID(n)
	source, ok := m.model.Node(sourceID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeDanglingReference,
			"source %q of reference %q no longer exists", sourceID, refID).WithNode(refID)
	}

	synced := source.Clone()
	own := n.Common()
	c := synced.Common()
	c.ID = own.ID
	c.Name = own.Name
	c.Reference = own.Reference
	if step, has := own.Properties[schema.PropStepDisplay]; has {
		if c.Properties == nil {
			c.Properties = make(map[string]any, 1)
		}
		c.Properties[schema.PropStepDisplay] = step
	} else {
		delete(c.Properties, schema.PropStepDisplay)
	}

	next, err := m.model.UpdateNode(synced)
	if err != nil {
		return nil, err
	}
	m.model = next
	m.logger.Debug("reference synced", slog.String(logging.AttrNodeID, refID), slog.String("source_id", sourceID))
	return synced.Clone(), nil
}

// DeleteReference removes a reference node (and its edges) from the model.
func (m *Manager) DeleteReference(refID string) error {
	n, err := m.reference(refID)
	if err != nil {
		return err
	}
	next, err := m.model.RemoveNode(refID)
	if err != nil {
		return err
	}
	m.model = next

	sourceID := schema.SourceNodeID(n)
	m.index[sourceID] = slices.DeleteFunc(m.index[sourceID], func(id string) bool { return id == refID })
	if len(m.index[sourceID]) == 0 {
		delete(m.index, sourceID)
	}
	m.logger.Debug("reference deleted", slog.String(logging.AttrNodeID, refID))
	return nil
}

func (m *Manager) reference(refID string) (schema.Node, error) {
	n, ok := m.model.Node(refID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q does not exist", refID).WithNode(refID)
	}
	if !schema.IsReference(n) {
		return nil, schema.NewErrorf(schema.ErrCodeNotReference, "node %q is not a reference", schema.DisplayName(n)).WithNode(refID)
	}
	return n, nil
}

// --- Queries ---

// ReferencesForNode returns the references of sourceID in creation order.
func (m *Manager) ReferencesForNode(sourceID string) []schema.Node {
	var out []schema.Node
	for _, id := range m.index[sourceID] {
		if n, ok := m.model.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// SourceNode returns the source of a reference. ok is false when refID is not
// a reference or its source is gone.
func (m *Manager) SourceNode(refID string) (schema.Node, bool) {
	n, ok := m.model.Node(refID)
	if !ok || !schema.IsReference(n) {
		return nil, false
	}
	return m.model.Node(schema.SourceNodeID(n))
}

// AllReferenceNodes returns every reference in model order.
func (m *Manager) AllReferenceNodes() []schema.Node {
	var out []schema.Node
	for _, n := range m.model.Nodes() {
		if schema.IsReference(n) {
			out = append(out, n)
		}
	}
	return out
}

// Statistics counts the references of the model.
func (m *Manager) Statistics() schema.ReferenceStatistics {
	stats := schema.ReferenceStatistics{ByType: make(map[schema.NodeType]int)}
	for _, n := range m.AllReferenceNodes() {
		stats.TotalReferences++
		stats.ByType[n.Type()]++
		if !m.model.HasNode(schema.SourceNodeID(n)) {
			stats.DanglingReferences++
		}
	}
	for src, refs := range m.index {
		if len(refs) > 0 && m.model.HasNode(src) {
			stats.SourcesWithReferences++
		}
	}
	return stats
}

// --- Result shapes ---

// CreationResult wraps the outcome of CreateReference.
func CreationResult(n schema.Node, err error) schema.ReferenceCreationResult {
	if err != nil {
		return schema.ReferenceCreationResult{Error: err.Error()}
	}
	return schema.ReferenceCreationResult{Success: true, ReferenceNode: n}
}

// EditResult wraps the outcome of EditReferenceNode or SyncReferenceWithSource.
func EditResult(n schema.Node, err error) schema.ReferenceEditResult {
	if err != nil {
		return schema.ReferenceEditResult{Error: err.Error()}
	}
	return schema.ReferenceEditResult{Success: true, UpdatedNode: n}
}
