package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowValidator orchestrates the validation pipeline:
//  0. Document (JSON Schema + expectedValue presence), only for raw documents
//  1. Nodes (per-kind rules)
//  2. Edges (dangling endpoints, self-loops, duplicates, branch values)
//  3. Graph (begin/end presence, disconnected nodes, swimlanes)
//  4. Concurrent regions (cycles, disconnected and unreachable members)
//  5. References (dangling sources)
//  6. Expressions (edge conditions, automation actions, test data)
//
// Stages 1-6 always all run; findings accumulate.
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	exprs      *expressions.Set
	locale     string
	logger     *slog.Logger
}

// Option configures a WorkflowValidator.
type Option func(*WorkflowValidator)

// WithLocale selects the language of ValidationIssue.LocalizedMessage.
func WithLocale(locale string) Option {
	return func(wv *WorkflowValidator) { wv.locale = locale }
}

// WithLogger sets the logger used for stage summaries at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(wv *WorkflowValidator) { wv.logger = logger }
}

// WithExpressions reuses an existing engine set.
func WithExpressions(set *expressions.Set) Option {
	return func(wv *WorkflowValidator) { wv.exprs = set }
}

// NewWorkflowValidator creates a WorkflowValidator. Engines and the document
// schema are compiled once here.
func NewWorkflowValidator(opts ...Option) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	wv := &WorkflowValidator{
		jsonSchema: jsv,
		locale:     LocaleEnglish,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(wv)
	}
	if wv.exprs == nil {
		set, err := expressions.NewSet()
		if err != nil {
			return nil, err
		}
		wv.exprs = set
	}
	return wv, nil
}

// Validate runs stages 1-6 over m.
func (wv *WorkflowValidator) Validate(m *model.WorkflowModel) *schema.WorkflowValidationResult {
	result := &schema.WorkflowValidationResult{}
	if m == nil {
		result.Add(newIssue(wv.locale, CodeDocumentStructure, "workflow model is nil"))
		return result
	}

	stages := []struct {
		name string
		run  func(*model.WorkflowModel) []schema.ValidationIssue
	}{
		{"nodes", wv.validateNodes},
		{"edges", wv.validateEdges},
		{"graph", wv.validateGraph},
		{"concurrent", wv.validateRegions},
		{"references", wv.validateReferences},
		{"expressions", wv.validateExpressions},
	}
	logger := logging.LogWith(logging.WithModelID(context.Background(), m.Metadata().ID), wv.logger)
	for _, stage := range stages {
		issues := stage.run(m)
		for _, issue := range issues {
			result.Add(issue)
		}
		logger.Debug("validation stage finished",
			slog.String("stage", stage.name),
			slog.Int("issues", len(issues)),
		)
	}

	result.Add(wv.summary(m))
	return result
}

// ValidateDocument runs stage 0 over a raw document, then decodes it and
// runs Validate. Only schema and decode failures short-circuit; the returned
// model is nil in that case and the result cannot be saved.
func (wv *WorkflowValidator) ValidateDocument(data []byte) (*schema.WorkflowValidationResult, *model.WorkflowModel) {
	result := &schema.WorkflowValidationResult{}

	if err := wv.jsonSchema.ValidateDocument(data); err != nil {
		for _, v := range violations(err) {
			result.Add(newIssue(wv.locale, CodeDocumentStructure, v))
		}
		return result, nil
	}
	for _, issue := range wv.expectedValuePresence(data) {
		result.Add(issue)
	}

	m, err := model.Decode(data)
	if err != nil {
		result.Add(newIssue(wv.locale, CodeDocumentDecode, err.Error()))
		return result, nil
	}

	result.Merge(wv.Validate(m))
	return result, m
}

// expectedValuePresence checks the key-level invariants a typed node cannot
// express: Begin never carries expectedValue, End and Exception always do.
func (wv *WorkflowValidator) expectedValuePresence(data []byte) []schema.ValidationIssue {
	var doc struct {
		Nodes []map[string]json.RawMessage `json:"nodes"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil // the schema stage has already accepted the document
	}

	var issues []schema.ValidationIssue
	for _, raw := range doc.Nodes {
		var id, name string
		var kind schema.NodeType
		_ = json.Unmarshal(raw["id"], &id)
		_ = json.Unmarshal(raw["name"], &name)
		_ = json.Unmarshal(raw["type"], &kind)
		_, has := raw["expectedValue"]

		var issue schema.ValidationIssue
		switch {
		case kind == schema.NodeTypeBegin && has:
			issue = newIssue(wv.locale, CodeBeginExpectedValue)
		case schema.HasExpectedValue(kind) && !has:
			issue = newIssue(wv.locale, CodeTerminalMissingExpectedValue, schema.TypeLabel(kind))
		default:
			continue
		}
		issue.NodeID, issue.NodeName, issue.NodeType = id, name, kind
		issue.Property = "expectedValue"
		issues = append(issues, issue)
	}
	return issues
}

func (wv *WorkflowValidator) summary(m *model.WorkflowModel) schema.ValidationIssue {
	references := 0
	for _, n := range m.Nodes() {
		if schema.IsReference(n) {
			references++
		}
	}
	return newIssue(wv.locale, CodeSummary,
		m.NodeCount(),
		len(m.Edges()),
		len(m.Swimlanes()),
		len(m.NodesOfType(schema.NodeTypeConcurrent)),
		references,
	)
}

// saveBlockingCodes are the findings that prevent a save. Every other error
// or warning is tolerated. Documents that never became a model block too.
var saveBlockingCodes = map[string]bool{
	CodeDocumentStructure:      true,
	CodeDocumentDecode:         true,
	CodeTableDuplicateRows:     true,
	CodeTableNoDecisionColumns: true,
	CodeTableNoOutputColumns:   true,
	CodeConcurrentCycle:        true,
	CodeEdgeDangling:           true,
}

// CanSave reports whether a model with these findings may be persisted.
func CanSave(result *schema.WorkflowValidationResult) bool {
	if result == nil {
		return true
	}
	for _, issue := range result.Errors {
		if saveBlockingCodes[issue.Code] {
			return false
		}
	}
	return true
}

// BlockingIssues returns the errors that make CanSave false.
func BlockingIssues(result *schema.WorkflowValidationResult) []schema.ValidationIssue {
	if result == nil {
		return nil
	}
	var out []schema.ValidationIssue
	for _, issue := range result.Errors {
		if saveBlockingCodes[issue.Code] {
			out = append(out, issue)
		}
	}
	return out
}

// violations unpacks the per-leaf messages of a schema FlowError.
func violations(err error) []string {
	fe, ok := err.(*schema.FlowError)
	if !ok {
		return []string{err.Error()}
	}
	if fe.Details != nil {
		if list, ok := fe.Details["violations"].([]string); ok {
			return list
		}
	}
	return []string{fe.Message}
}
