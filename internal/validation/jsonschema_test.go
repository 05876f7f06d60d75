package validation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

func pieceStep(name, piece, action string) *schema.Action {
	return &schema.Action{
		Name:     name,
		Type:     schema.ActionTypePiece,
		Settings: map[string]any{"pieceName": piece, "actionName": action},
	}
}

func flowOf(first *schema.Action) *schema.Flow {
	return &schema.Flow{
		DisplayName: "test",
		Trigger:     schema.Trigger{Name: "trigger", NextAction: first},
	}
}

func TestNewJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.NotNil(t, v.flowSchema)
}

// --- ValidateFlow ---

func TestValidateFlow_Nil(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateFlow(nil)
	require.Error(t, err)

	se, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, se.Code)
	assert.Contains(t, se.Message, "nil")
}

func TestValidateFlow_TriggerOnly(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.NoError(t, v.ValidateFlow(flowOf(nil)))
}

func TestValidateFlow_EveryKind(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	flow := flowOf(&schema.Action{
		Name:     "loop",
		Type:     schema.ActionTypeLoop,
		Settings: map[string]any{"items": "${trigger.items}"},
		FirstLoopAction: &schema.Action{
			Name:     "check",
			Type:     schema.ActionTypeBranch,
			Settings: map[string]any{"condition": "steps.loop.current_item > 1"},
			OnSuccessAction: &schema.Action{
				Name:     "save",
				Type:     schema.ActionTypeStorage,
				Settings: map[string]any{"operation": "put", "key": "${loop.current_item}", "value": 1},
			},
			OnFailureAction: &schema.Action{
				Name:     "calc",
				Type:     schema.ActionTypeCode,
				Settings: map[string]any{"language": "jq", "script": ".x", "input": map[string]any{"x": 1}},
			},
		},
		NextAction: pieceStep("notify", "http", "post"),
	})
	assert.NoError(t, v.ValidateFlow(flow))
}

func TestValidateFlow_Violations(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name string
		flow *schema.Flow
	}{
		{"empty trigger name", &schema.Flow{}},
		{"action without name", flowOf(&schema.Action{Type: schema.ActionTypeLoop})},
		{"unknown type", flowOf(&schema.Action{Name: "a", Type: "WAIT"})},
		{"missing type", flowOf(&schema.Action{Name: "a"})},
		{"piece without settings", flowOf(&schema.Action{Name: "a", Type: schema.ActionTypePiece})},
		{"piece without action name", flowOf(&schema.Action{
			Name: "a", Type: schema.ActionTypePiece, Settings: map[string]any{"pieceName": "http"},
		})},
		{"empty piece name", flowOf(pieceStep("a", "", "get"))},
		{"storage without key", flowOf(&schema.Action{
			Name: "a", Type: schema.ActionTypeStorage, Settings: map[string]any{"operation": "GET"},
		})},
		{"storage bad operation", flowOf(&schema.Action{
			Name: "a", Type: schema.ActionTypeStorage, Settings: map[string]any{"operation": "DELETE", "key": "k"},
		})},
		{"branch without condition", flowOf(&schema.Action{
			Name: "a", Type: schema.ActionTypeBranch, Settings: map[string]any{},
		})},
		{"code unknown language", flowOf(&schema.Action{
			Name: "a", Type: schema.ActionTypeCode, Settings: map[string]any{"language": "lua", "script": "x"},
		})},
		{"code empty script", flowOf(&schema.Action{
			Name: "a", Type: schema.ActionTypeCode, Settings: map[string]any{"script": ""},
		})},
		{"nested violation", flowOf(&schema.Action{
			Name:            "loop",
			Type:            schema.ActionTypeLoop,
			FirstLoopAction: &schema.Action{Name: "inner", Type: "NOPE"},
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateFlow(tt.flow)
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
		})
	}
}

func TestValidateFlow_StorageAcceptsNumericKeyAndLowercase(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	flow := flowOf(&schema.Action{
		Name:     "get",
		Type:     schema.ActionTypeStorage,
		Settings: map[string]any{"operation": "get", "key": 42},
	})
	assert.NoError(t, v.ValidateFlow(flow))
}

func TestValidateFlow_ErrorDetails(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateFlow(flowOf(&schema.Action{Name: "a", Type: "WAIT"}))
	require.Error(t, err)

	se, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.NotNil(t, se.Details)
	assert.Contains(t, se.Details, "violations")
}

func TestValidateFlow_Concurrent(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	flow := flowOf(pieceStep("a", "http", "get"))
	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := range 50 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = v.ValidateFlow(flow)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}
}

// --- ValidateInput ---

func TestValidateInput_NilInput(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateInput(nil, []byte(`{"type": "object"}`))
	require.Error(t, err)

	se, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, se.Code)
	assert.Contains(t, se.Message, "nil")
}

func TestValidateInput_EmptySchema(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateInput(map[string]any{"foo": "bar"}, nil)
	assert.NoError(t, err, "nil schema means no validation")

	err = v.ValidateInput(map[string]any{"foo": "bar"}, []byte{})
	assert.NoError(t, err, "empty schema means no validation")
}

func TestValidateInput_Constraints(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	inputSchema := []byte(`{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "format": "uri"},
			"retries": {"type": "integer", "minimum": 0},
			"method": {"type": "string", "enum": ["GET", "POST"]},
			"tags": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`)

	tests := []struct {
		name  string
		input map[string]any
		ok    bool
	}{
		{"valid", map[string]any{"url": "https://example.com", "retries": 2, "method": "GET", "tags": []any{"a"}}, true},
		{"missing required", map[string]any{"retries": 1}, false},
		{"wrong type", map[string]any{"url": 5}, false},
		{"below minimum", map[string]any{"url": "https://example.com", "retries": -1}, false},
		{"not in enum", map[string]any{"url": "https://example.com", "method": "PATCH"}, false},
		{"bad array item", map[string]any{"url": "https://example.com", "tags": []any{1}}, false},
		{"bad format", map[string]any{"url": "not a uri"}, false},
		{"additional property", map[string]any{"url": "https://example.com", "extra": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateInput(tt.input, inputSchema)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
		})
	}
}

func TestValidateInput_RefSupport(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	inputSchema := []byte(`{
		"type": "object",
		"properties": {
			"primary": { "$ref": "#/$defs/address" },
			"billing": { "$ref": "#/$defs/address" }
		},
		"$defs": {
			"address": {
				"type": "object",
				"required": ["street", "city"],
				"properties": {
					"street": {"type": "string"},
					"city": {"type": "string"}
				}
			}
		}
	}`)

	t.Run("valid with ref", func(t *testing.T) {
		input := map[string]any{
			"primary": map[string]any{"street": "123 Main", "city": "Portland"},
			"billing": map[string]any{"street": "456 Oak", "city": "Seattle"},
		}
		assert.NoError(t, v.ValidateInput(input, inputSchema))
	})

	t.Run("invalid ref target", func(t *testing.T) {
		input := map[string]any{
			"primary": map[string]any{"street": "123 Main"}, // missing city
		}
		require.Error(t, v.ValidateInput(input, inputSchema))
	})
}

func TestValidateInput_MultipleErrors(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	inputSchema := []byte(`{
		"type": "object",
		"properties": {
			"a": {"type": "string"},
			"b": {"type": "integer"}
		}
	}`)
	err = v.ValidateInput(map[string]any{"a": 1, "b": "x"}, inputSchema)
	require.Error(t, err)

	se, ok := err.(*schema.Error)
	require.True(t, ok)
	violations, ok := se.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
	assert.Contains(t, se.Message, "errors")
}

func TestValidateInput_InvalidSchema(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateInput(map[string]any{"foo": "bar"}, []byte(`{not json`))
	require.Error(t, err)

	se, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, se.Code)
	assert.Contains(t, se.Message, "invalid input schema")
}

// --- Schema caching ---

func TestValidateInput_SchemaCaching(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	inputSchema := []byte(`{"type": "object", "properties": {"x": {"type": "integer"}}}`)
	input := map[string]any{"x": 42}

	// First call compiles and caches.
	require.NoError(t, v.ValidateInput(input, inputSchema))

	v.mu.RLock()
	cacheLen := len(v.cache)
	v.mu.RUnlock()
	assert.Equal(t, 1, cacheLen, "schema should be cached")

	// Second call uses cache.
	require.NoError(t, v.ValidateInput(input, inputSchema))

	v.mu.RLock()
	cacheLen2 := len(v.cache)
	v.mu.RUnlock()
	assert.Equal(t, 1, cacheLen2, "cache size should not change")
}

func TestValidateInput_Concurrent(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	schema1 := []byte(`{"type": "object", "properties": {"a": {"type": "string"}}}`)
	schema2 := []byte(`{"type": "object", "properties": {"b": {"type": "integer"}}}`)

	var wg sync.WaitGroup
	errs := make([]error, 100)
	for i := range 100 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if idx%2 == 0 {
				errs[idx] = v.ValidateInput(map[string]any{"a": "x"}, schema1)
			} else {
				errs[idx] = v.ValidateInput(map[string]any{"b": 1}, schema2)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}
	assert.Len(t, v.cache, 2)
}
