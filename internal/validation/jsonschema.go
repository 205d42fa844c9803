package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchemaJSON is the JSON Schema of a persisted workflow document.
// Embedded as a constant to avoid filesystem dependencies.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowgraph.dev/schemas/workflow.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "version": { "type": "string" },
    "createdAt": { "type": "string", "format": "date-time" },
    "updatedAt": { "type": "string", "format": "date-time" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/edge" }
    },
    "swimlanes": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/swimlane" }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["begin", "end", "exception", "process", "decision", "decisionTable",
                   "subprocess", "concurrent", "auto", "api"]
        },
        "name": { "type": "string" },
        "properties": { "type": ["object", "null"] },
        "position": {
          "type": "object",
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          }
        },
        "testData": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/binding" }
        },
        "automationActions": {
          "type": ["array", "null"],
          "items": {
            "allOf": [
              { "$ref": "#/$defs/binding" },
              { "required": ["type"], "properties": { "type": { "type": "string" } } }
            ]
          }
        },
        "isReference": { "type": "boolean" },
        "sourceNodeId": { "type": "string" },
        "editableProperties": {
          "type": ["array", "null"],
          "items": { "type": "string" }
        },
        "branches": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "required": ["id"],
            "properties": {
              "id": { "type": "string" },
              "value": { "type": "string" },
              "isDefault": { "type": "boolean" }
            }
          }
        },
        "tableData": { "type": "object" },
        "referencePath": { "type": "string" },
        "parallelBranches": {
          "type": ["array", "null"],
          "items": { "type": "string" }
        },
        "automationConfig": { "type": ["object", "null"] },
        "apiEndpoint": { "type": "string" },
        "apiConfig": { "type": ["object", "null"] }
      }
    },
    "binding": {
      "type": "object",
      "required": ["id", "edgeId"],
      "properties": {
        "id": { "type": "string" },
        "edgeId": { "type": "string" },
        "name": { "type": "string" }
      }
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "type": "string" },
        "target": { "type": "string" },
        "condition": { "type": "string" },
        "value": { "type": "string" },
        "dataType": { "type": "string" }
      }
    },
    "swimlane": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "containedNodes": {
          "type": ["array", "null"],
          "items": { "type": "string" }
        }
      }
    }
  }
}`

// JSONSchemaValidator checks raw workflow documents and Auto node test data
// against JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	document *jsonschema.Schema

	mu      sync.Mutex
	schemas map[string]*DataSchema // keyed by canonical JSON
}

// DataSchema is a compiled inputSchema.
type DataSchema struct {
	compiled *jsonschema.Schema
}

const documentSchemaURL = "https://flowgraph.dev/schemas/workflow.json"

func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("document schema: %w", err)
	}
	compiled, err := compileResource(documentSchemaURL, doc)
	if err != nil {
		return nil, fmt.Errorf("document schema: %w", err)
	}
	return &JSONSchemaValidator{document: compiled, schemas: make(map[string]*DataSchema)}, nil
}

// ValidateDocument checks a raw workflow document. Violations are returned as
// a FlowError whose Details["violations"] lists one message per failing leaf.
func (v *JSONSchemaValidator) ValidateDocument(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "malformed workflow document").WithCause(err)
	}
	return violationError(v.document.Validate(doc))
}

// DataSchema compiles the decoded schema def, reusing an earlier compilation
// of an equal schema.
func (v *JSONSchemaValidator) DataSchema(def any) (*DataSchema, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "inputSchema is not JSON").WithCause(err)
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()
	if ds, ok := v.schemas[key]; ok {
		return ds, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "inputSchema is not JSON").WithCause(err)
	}
	compiled, err := compileResource(fmt.Sprintf("flowgraph://input-schema/%d", len(v.schemas)), doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid inputSchema").WithCause(err)
	}
	ds := &DataSchema{compiled: compiled}
	v.schemas[key] = ds
	return ds, nil
}

// Validate checks one test datum. A nil datum is validated as an empty object.
func (ds *DataSchema) Validate(data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	// Round-trip so numbers reach the validator as json.Number.
	raw, err := json.Marshal(data)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "test data is not JSON").WithCause(err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "test data is not JSON").WithCause(err)
	}
	return violationError(ds.compiled.Validate(doc))
}

// compileResource compiles doc in a compiler of its own, so schema URLs never
// collide.
func compileResource(url string, doc any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// violationError converts a jsonschema.ValidationError into a FlowError
// listing every violation. nil stays nil.
func violationError(err error) error {
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}

	violations := leafViolations(verr)
	msg := verr.Error()
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, msg)
	case 1:
		msg = violations[0]
	default:
		msg = fmt.Sprintf("%d schema violations: %s", len(violations), strings.Join(violations, "; "))
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// leafViolations flattens the cause tree into "location: message" strings.
func leafViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{"/" + strings.Join(verr.InstanceLocation, "/") + ": " + verr.Error()}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, leafViolations(cause)...)
	}
	return out
}

// errorCause returns the innermost useful message of err.
func errorCause(err error) string {
	var fe *schema.FlowError
	if errors.As(err, &fe) && fe.Cause != nil {
		return fe.Cause.Error()
	}
	return err.Error()
}
