package validation

import (
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Issue codes. Codes are stable; messages may change.
const (
	CodeDocumentStructure = "workflow.document.structure"
	CodeDocumentDecode    = "workflow.document.decode"

	CodeNodeNameBlank = "workflow.node.name-blank"

	CodeBeginExpectedValue           = "workflow.begin.expected-value"
	CodeTerminalMissingExpectedValue = "workflow.end.missing-expected-value"
	CodeProcessMultipleOutgoing      = "workflow.process.multiple-outgoing"
	CodeDecisionDuplicateBranch      = "workflow.decision.duplicate-branch"
	CodeDecisionEmptyBranch          = "workflow.decision.empty-branch"
	CodeDecisionInsufficientBranches = "workflow.decision.insufficient-branches"
	CodeDecisionMultipleDefaults     = "workflow.decision.multiple-defaults"
	CodeTableNoDecisionColumns       = "workflow.decision-table.no-decision-columns"
	CodeTableNoOutputColumns         = "workflow.decision-table.no-output-columns"
	CodeTableDuplicateRows           = "workflow.decision-table.duplicate-rows"
	CodeTableNoRows                  = "workflow.decision-table.no-rows"
	CodeSubprocessMissingReference   = "workflow.subprocess.missing-reference"
	CodeConcurrentIllegalMember      = "workflow.concurrent-node.illegal-member"
	CodeConcurrentEmpty              = "workflow.concurrent-node.empty"
	CodeConcurrentUnknownMember      = "workflow.concurrent-node.unknown-member"
	CodeConcurrentCycle              = "workflow.concurrent-node.contains-cycle"
	CodeConcurrentDisconnected       = "workflow.concurrent-node.disconnected-member"
	CodeConcurrentUnreachable        = "workflow.concurrent-node.unreachable-member"
	CodeAutoMissingConfig            = "workflow.auto.missing-config"
	CodeAutoInvalidSchedule          = "workflow.auto.invalid-schedule"
	CodeAutoInvalidInputSchema       = "workflow.auto.invalid-input-schema"
	CodeAPIMissingEndpoint           = "workflow.api.missing-endpoint"

	CodeReferenceNotReferenceable = "workflow.reference.not-referenceable"
	CodeReferenceMissingSource    = "workflow.reference.missing-source"
	CodeReferenceEditableFields   = "workflow.reference.editable-properties"
	CodeReferenceDangling         = "workflow.reference.dangling-source"
	CodeReferenceOfReference      = "workflow.reference.source-is-reference"
	CodeReferenceTypeMismatch     = "workflow.reference.type-mismatch"

	CodeEdgeDangling      = "workflow.edge.dangling-endpoint"
	CodeEdgeSelfLoop      = "workflow.edge.self-loop"
	CodeEdgeDuplicate     = "workflow.edge.duplicate"
	CodeEdgeUnknownBranch = "workflow.edge.unknown-branch-value"

	CodeMissingBegin     = "workflow.graph.missing-begin"
	CodeMissingEnd       = "workflow.graph.missing-end"
	CodeMultipleBegin    = "workflow.graph.multiple-begin"
	CodeDisconnectedNode = "workflow.graph.disconnected-node"

	CodeSwimlaneUnknownNode        = "workflow.swimlane.unknown-node"
	CodeSwimlaneMultipleMembership = "workflow.swimlane.multiple-membership"

	CodeInvalidCondition       = "workflow.expression.invalid-condition"
	CodeInvalidAction          = "workflow.expression.invalid-action"
	CodeUnboundAutomation      = "workflow.automation.unbound-edge"
	CodeTestDataSchemaMismatch = "workflow.test-data.schema-mismatch"

	CodeSummary = "workflow.summary"
)

// message is the catalog entry of a code: its severity plus one format string
// per locale. Every locale takes the same arguments in the same order.
type message struct {
	severity schema.ValidationSeverity
	en, es   string
}

const (
	sevError   = schema.SeverityError
	sevWarning = schema.SeverityWarning
	sevInfo    = schema.SeverityInfo
)

var catalog = map[string]message{
	CodeDocumentStructure: {sevError, "document structure: %s", "estructura del documento: %s"},
	CodeDocumentDecode:    {sevError, "document could not be decoded: %s", "no se pudo decodificar el documento: %s"},

	CodeNodeNameBlank: {sevWarning, "%s node %q has no name", "el nodo %s %q no tiene nombre"},

	CodeBeginExpectedValue:           {sevError, "begin node must not define expectedValue", "el nodo de inicio no debe definir expectedValue"},
	CodeTerminalMissingExpectedValue: {sevError, "%s node must define expectedValue", "el nodo %s debe definir expectedValue"},
	CodeProcessMultipleOutgoing:      {sevError, "process node has %d outgoing edges, at most 1 allowed", "el nodo de proceso tiene %d conexiones de salida, se permite como máximo 1"},
	CodeDecisionDuplicateBranch:      {sevError, "branch value %q is used %d times", "el valor de rama %q se usa %d veces"},
	CodeDecisionEmptyBranch:          {sevWarning, "branch %q has an empty value", "la rama %q tiene un valor vacío"},
	CodeDecisionInsufficientBranches: {sevWarning, "decision has %d branches, at least 2 recommended", "la decisión tiene %d ramas, se recomiendan al menos 2"},
	CodeDecisionMultipleDefaults:     {sevWarning, "decision has %d default branches", "la decisión tiene %d ramas por defecto"},
	CodeTableNoDecisionColumns:       {sevError, "decision table needs at least one decision column", "la tabla de decisión necesita al menos una columna de decisión"},
	CodeTableNoOutputColumns:         {sevError, "decision table needs at least one output column", "la tabla de decisión necesita al menos una columna de salida"},
	CodeTableDuplicateRows:           {sevError, "rows %s have identical decision values", "las filas %s tienen valores de decisión idénticos"},
	CodeTableNoRows:                  {sevWarning, "decision table has no rows", "la tabla de decisión no tiene filas"},
	CodeSubprocessMissingReference:   {sevWarning, "subprocess has no referencePath", "el subproceso no tiene referencePath"},
	CodeConcurrentIllegalMember:      {sevError, "concurrent region cannot contain %s node %q", "la región concurrente no puede contener el nodo %s %q"},
	CodeConcurrentEmpty:              {sevWarning, "concurrent region has no members", "la región concurrente no tiene miembros"},
	CodeConcurrentUnknownMember:      {sevWarning, "concurrent region references unknown node %q", "la región concurrente referencia el nodo desconocido %q"},
	CodeConcurrentCycle:              {sevError, "concurrent region contains a cycle: %s", "la región concurrente contiene un ciclo: %s"},
	CodeConcurrentDisconnected:       {sevWarning, "node %q is disconnected inside the concurrent region", "el nodo %q está desconectado dentro de la región concurrente"},
	CodeConcurrentUnreachable:        {sevWarning, "node %q is unreachable from the region entry points", "el nodo %q no es alcanzable desde las entradas de la región"},
	CodeAutoMissingConfig:            {sevWarning, "auto node has no automationConfig", "el nodo automático no tiene automationConfig"},
	CodeAutoInvalidSchedule:          {sevWarning, "schedule %q is not a valid cron expression: %s", "el horario %q no es una expresión cron válida: %s"},
	CodeAutoInvalidInputSchema:       {sevWarning, "inputSchema does not compile: %s", "inputSchema no compila: %s"},
	CodeAPIMissingEndpoint:           {sevWarning, "api node has no apiEndpoint", "el nodo api no tiene apiEndpoint"},

	CodeReferenceNotReferenceable: {sevError, "%s nodes cannot be references", "los nodos %s no pueden ser referencias"},
	CodeReferenceMissingSource:    {sevError, "reference has no sourceNodeId", "la referencia no tiene sourceNodeId"},
	CodeReferenceEditableFields:   {sevWarning, "reference editableProperties must be %v", "editableProperties de la referencia debe ser %v"},
	CodeReferenceDangling:         {sevError, "reference source %q does not exist", "el nodo origen %q de la referencia no existe"},
	CodeReferenceOfReference:      {sevError, "reference source %q is itself a reference", "el nodo origen %q es a su vez una referencia"},
	CodeReferenceTypeMismatch:     {sevWarning, "reference type %s differs from source type %s", "el tipo de la referencia %s difiere del tipo de origen %s"},

	CodeEdgeDangling:      {sevError, "edge %q points at missing %s node %q", "la conexión %q apunta al nodo %s inexistente %q"},
	CodeEdgeSelfLoop:      {sevWarning, "edge %q connects node %q to itself", "la conexión %q une el nodo %q consigo mismo"},
	CodeEdgeDuplicate:     {sevWarning, "edge %q duplicates edge %q", "la conexión %q duplica la conexión %q"},
	CodeEdgeUnknownBranch: {sevWarning, "edge %q value %q matches no branch of its decision", "el valor %[2]q de la conexión %[1]q no coincide con ninguna rama"},

	CodeMissingBegin:     {sevError, "workflow has no begin node", "el flujo no tiene nodo de inicio"},
	CodeMissingEnd:       {sevError, "workflow has no end node", "el flujo no tiene nodo de fin"},
	CodeMultipleBegin:    {sevWarning, "workflow has %d begin nodes", "el flujo tiene %d nodos de inicio"},
	CodeDisconnectedNode: {sevWarning, "node %q has no connections", "el nodo %q no tiene conexiones"},

	CodeSwimlaneUnknownNode:        {sevWarning, "swimlane %q contains unknown node %q", "el carril %q contiene el nodo desconocido %q"},
	CodeSwimlaneMultipleMembership: {sevWarning, "node %q belongs to swimlanes %q and %q", "el nodo %q pertenece a los carriles %q y %q"},

	CodeInvalidCondition:       {sevWarning, "edge %q condition does not compile: %s", "la condición de la conexión %q no compila: %s"},
	CodeInvalidAction:          {sevWarning, "automation action %q is invalid: %s", "la acción automática %q no es válida: %s"},
	CodeUnboundAutomation:      {sevWarning, "%s %q is bound to edge %q, which does not leave this node", "%s %q está ligado a la conexión %q, que no sale de este nodo"},
	CodeTestDataSchemaMismatch: {sevWarning, "test data %q does not match inputSchema: %s", "los datos de prueba %q no cumplen inputSchema: %s"},

	CodeSummary: {sevInfo, "%d nodes, %d edges, %d swimlanes, %d concurrent regions, %d references", "%d nodos, %d conexiones, %d carriles, %d regiones concurrentes, %d referencias"},
}

// Supported locales for ValidationIssue.LocalizedMessage.
const (
	LocaleEnglish = "en"
	LocaleSpanish = "es"
)

// newIssue builds an issue from the catalog. Unknown codes become errors
// carrying the raw arguments.
func newIssue(locale, code string, args ...any) schema.ValidationIssue {
	msg, ok := catalog[code]
	if !ok {
		text := fmt.Sprint(args...)
		return schema.ValidationIssue{Code: code, Message: text, LocalizedMessage: text, Severity: sevError}
	}
	en := fmt.Sprintf(msg.en, args...)
	localized := en
	if locale == LocaleSpanish {
		localized = fmt.Sprintf(msg.es, args...)
	}
	return schema.ValidationIssue{
		Code:             code,
		Message:          en,
		LocalizedMessage: localized,
		Severity:         msg.severity,
	}
}

// forNode fills the node fields of an issue.
func forNode(issue schema.ValidationIssue, n schema.Node) schema.ValidationIssue {
	if n == nil {
		return issue
	}
	issue.NodeID = n.Common().ID
	issue.NodeName = n.Common().Name
	issue.NodeType = n.Type()
	return issue
}
