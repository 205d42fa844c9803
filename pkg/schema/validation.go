package schema

import (
	"encoding/json"
	"fmt"
)

// ValidationSeverity indicates whether an issue is an error, warning or info.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
	SeverityInfo    ValidationSeverity = "info"
)

// ValidationIssue is a single finding of the whole-workflow validation.
// Code is a stable dotted identifier such as "workflow.concurrent-node.contains-cycle".
type ValidationIssue struct {
	Code             string             `json:"code"`
	Message          string             `json:"message"`
	LocalizedMessage string             `json:"localizedMessage,omitempty"`
	Severity         ValidationSeverity `json:"severity"`
	NodeID           string             `json:"nodeId,omitempty"`
	NodeName         string             `json:"nodeName,omitempty"`
	NodeType         NodeType           `json:"nodeType,omitempty"`
	Property         string             `json:"property,omitempty"`
	Suggestion       string             `json:"suggestion,omitempty"`
}

// WorkflowValidationResult aggregates issues from all validation stages.
type WorkflowValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
	Infos    []ValidationIssue `json:"infos"`
}

// Valid returns true if there are no errors (warnings and infos are acceptable).
func (r *WorkflowValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Add appends an issue to the bucket matching its severity.
func (r *WorkflowValidationResult) Add(issue ValidationIssue) {
	switch issue.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, issue)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, issue)
	default:
		issue.Severity = SeverityInfo
		r.Infos = append(r.Infos, issue)
	}
}

// Merge combines another result into this one.
func (r *WorkflowValidationResult) Merge(other *WorkflowValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Infos = append(r.Infos, other.Infos...)
}

// HasCode reports whether any issue of any severity carries code.
func (r *WorkflowValidationResult) HasCode(code string) bool {
	for _, bucket := range [][]ValidationIssue{r.Errors, r.Warnings, r.Infos} {
		for _, issue := range bucket {
			if issue.Code == code {
				return true
			}
		}
	}
	return false
}

// CountCode returns how many issues carry code.
func (r *WorkflowValidationResult) CountCode(code string) int {
	n := 0
	for _, bucket := range [][]ValidationIssue{r.Errors, r.Warnings, r.Infos} {
		for _, issue := range bucket {
			if issue.Code == code {
				n++
			}
		}
	}
	return n
}

// MarshalJSON adds the derived isValid flag.
func (r *WorkflowValidationResult) MarshalJSON() ([]byte, error) {
	type plain WorkflowValidationResult
	return json.Marshal(struct {
		IsValid bool `json:"isValid"`
		*plain
	}{IsValid: r.Valid(), plain: (*plain)(r)})
}

// ToError converts the result to a FlowError if invalid, nil if valid.
func (r *WorkflowValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}

// NodeValidationResult is returned by every per-node validate call.
type NodeValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// ConcurrentValidationResult is the composite structural check of a concurrent region.
type ConcurrentValidationResult struct {
	IsValid           bool     `json:"isValid"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings,omitempty"`
	HasCycle          bool     `json:"hasCycle,omitempty"`
	CyclePath         []string `json:"cyclePath,omitempty"`
	InvalidNodes      []string `json:"invalidNodes,omitempty"`
	UnreachableNodes  []string `json:"unreachableNodes,omitempty"`
	DisconnectedNodes []string `json:"disconnectedNodes,omitempty"`
}
