package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func TestJSONSchema_DocumentViolations(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	require.NoError(t, v.ValidateDocument([]byte(`{"nodes": []}`)))

	err = v.ValidateDocument([]byte(`{"nodes": [{"id": ""}]}`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	assert.NotEmpty(t, violations(err))
	assert.Contains(t, violations(err)[0], "/nodes/0")
}

func TestJSONSchema_DataSchemaCached(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := map[string]any{
		"type":     "object",
		"required": []any{"amount"},
		"properties": map[string]any{
			"amount": map[string]any{"type": "number", "minimum": 0},
		},
	}
	a, err := v.DataSchema(def)
	require.NoError(t, err)
	b, err := v.DataSchema(def)
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.NoError(t, a.Validate(map[string]any{"amount": 3}))
	assert.Error(t, a.Validate(nil), "nil data is an empty object")

	err = a.Validate(map[string]any{"amount": -1})
	require.Error(t, err)
	assert.Len(t, violations(err), 1)
}

func TestJSONSchema_InvalidDataSchema(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	_, err = v.DataSchema(map[string]any{"type": "no-such-type"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	assert.NotEqual(t, "invalid inputSchema", errorCause(err))
}
