package schema

import "strings"

var referenceableTypes = map[NodeType]bool{
	NodeTypeBegin:         true,
	NodeTypeEnd:           true,
	NodeTypeProcess:       true,
	NodeTypeDecision:      true,
	NodeTypeDecisionTable: true,
	NodeTypeAuto:          true,
	NodeTypeException:     true,
}

// illegalConcurrentMembers are the kinds a concurrent region may never contain.
var illegalConcurrentMembers = map[NodeType]bool{
	NodeTypeBegin:     true,
	NodeTypeEnd:       true,
	NodeTypeException: true,
}

// Valid reports whether t is one of the ten known node kinds.
func (t NodeType) Valid() bool {
	for _, known := range AllNodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsReferenceableType reports whether nodes of kind t may be cloned as references.
func IsReferenceableType(t NodeType) bool {
	return referenceableTypes[t]
}

// IsIllegalInConcurrent reports whether kind t is forbidden inside a concurrent region.
func IsIllegalInConcurrent(t NodeType) bool {
	return illegalConcurrentMembers[t]
}

// IsTerminal reports whether kind t ends a path (End or Exception).
func IsTerminal(t NodeType) bool {
	return t == NodeTypeEnd || t == NodeTypeException
}

// HasExpectedValue reports whether kind t carries an expectedValue field.
func HasExpectedValue(t NodeType) bool {
	return IsTerminal(t)
}

// IsReference reports whether n is a reference node.
func IsReference(n Node) bool {
	return n != nil && n.Common().Reference != nil
}

// SourceNodeID returns the source of a reference node, or "".
func SourceNodeID(n Node) string {
	if !IsReference(n) {
		return ""
	}
	return n.Common().Reference.SourceNodeID
}

// StepDisplay returns the stepDisplay property and whether it is set to a boolean.
func StepDisplay(n Node) (value, ok bool) {
	if n == nil {
		return false, false
	}
	v, ok := n.Common().Properties[PropStepDisplay].(bool)
	return v, ok
}

// IsNameBlank reports whether the node's display name is empty or whitespace.
func IsNameBlank(n Node) bool {
	return strings.TrimSpace(n.Common().Name) == ""
}

// DisplayName returns the node name, falling back to its ID when blank.
func DisplayName(n Node) string {
	if n == nil {
		return ""
	}
	if IsNameBlank(n) {
		return n.Common().ID
	}
	return n.Common().Name
}

// TypeLabel returns the human label of a node kind.
func TypeLabel(t NodeType) string {
	switch t {
	case NodeTypeBegin:
		return "Begin"
	case NodeTypeEnd:
		return "End"
	case NodeTypeException:
		return "Exception"
	case NodeTypeProcess:
		return "Process"
	case NodeTypeDecision:
		return "Decision"
	case NodeTypeDecisionTable:
		return "Decision Table"
	case NodeTypeSubprocess:
		return "Subprocess"
	case NodeTypeConcurrent:
		return "Concurrent"
	case NodeTypeAuto:
		return "Auto"
	case NodeTypeAPI:
		return "API"
	default:
		return string(t)
	}
}

// IDPrefix returns the id-generator prefix used for nodes of kind t.
func IDPrefix(t NodeType) string {
	if t == NodeTypeDecisionTable {
		return "decision_table"
	}
	return string(t)
}
