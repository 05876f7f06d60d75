package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/stepflow/pkg/schema"
)

// flowSchemaJSON is the JSON Schema for Flow validation. Per-kind settings
// are checked with if/then so that templates still pass where a value is
// only known at run time.
const flowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepflow.dev/schemas/flow.json",
  "type": "object",
  "required": ["trigger"],
  "properties": {
    "displayName": { "type": "string" },
    "trigger": { "$ref": "#/$defs/trigger" },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "trigger": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "displayName": { "type": "string" },
        "type": { "type": "string" },
        "settings": { "type": "object" },
        "nextAction": { "$ref": "#/$defs/action" }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "displayName": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["PIECE", "LOOP_ON_ITEMS", "STORAGE", "BRANCH", "CODE"]
        },
        "settings": { "type": "object" },
        "nextAction": { "$ref": "#/$defs/action" },
        "firstLoopAction": { "$ref": "#/$defs/action" },
        "onSuccessAction": { "$ref": "#/$defs/action" },
        "onFailureAction": { "$ref": "#/$defs/action" }
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "PIECE" } } },
          "then": {
            "required": ["settings"],
            "properties": { "settings": { "$ref": "#/$defs/pieceSettings" } }
          }
        },
        {
          "if": { "properties": { "type": { "const": "STORAGE" } } },
          "then": {
            "required": ["settings"],
            "properties": { "settings": { "$ref": "#/$defs/storageSettings" } }
          }
        },
        {
          "if": { "properties": { "type": { "const": "BRANCH" } } },
          "then": {
            "required": ["settings"],
            "properties": { "settings": { "$ref": "#/$defs/branchSettings" } }
          }
        },
        {
          "if": { "properties": { "type": { "const": "CODE" } } },
          "then": {
            "required": ["settings"],
            "properties": { "settings": { "$ref": "#/$defs/codeSettings" } }
          }
        }
      ]
    },
    "pieceSettings": {
      "type": "object",
      "required": ["pieceName", "actionName"],
      "properties": {
        "pieceName": { "type": "string", "minLength": 1 },
        "actionName": { "type": "string", "minLength": 1 },
        "input": { "type": ["object", "string"] }
      }
    },
    "storageSettings": {
      "type": "object",
      "required": ["key"],
      "properties": {
        "operation": { "type": "string", "pattern": "^(?i:get|put)?$" },
        "key": { "type": ["string", "number"] },
        "value": {}
      }
    },
    "branchSettings": {
      "type": "object",
      "required": ["condition"],
      "properties": {
        "condition": { "type": "string", "minLength": 1 }
      }
    },
    "codeSettings": {
      "type": "object",
      "required": ["script"],
      "properties": {
        "language": { "type": "string", "enum": ["expr", "jq"] },
        "script": { "type": "string", "minLength": 1 },
        "input": { "type": ["object", "string"] }
      }
    }
  }
}`

const flowSchemaURL = "https://stepflow.dev/schemas/flow.json"

// JSONSchemaValidator validates flow structure and piece inputs with JSON
// Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	flowSchema *jsonschema.Schema

	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the flow schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flow schema: %w", err)
	}
	if err := c.AddResource(flowSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add flow schema resource: %w", err)
	}

	flowSchema, err := c.Compile(flowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile flow schema: %w", err)
	}

	return &JSONSchemaValidator{
		flowSchema: flowSchema,
		cache:      make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateFlow validates a Flow against the flow JSON Schema.
func (v *JSONSchemaValidator) ValidateFlow(flow *schema.Flow) error {
	if flow == nil {
		return schema.NewError(schema.ErrCodeValidation, "flow is nil")
	}

	doc, err := toJSONValue(flow)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize flow").WithCause(err)
	}

	if err := v.flowSchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// ValidateInput validates input data against a JSON Schema provided as raw bytes.
// The schema is compiled and cached for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "input is nil")
	}
	if len(inputSchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	// Convert input to JSON-compatible value (json.Number for numbers).
	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toSchemaError(err)
	}

	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions in the compiler.
	url := fmt.Sprintf("stepflow://input-schema/%d", len(v.cache))

	// Use a fresh compiler per dynamic schema to avoid resource collision.
	c := newInputCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// newInputCompiler creates a Compiler configured for input/output validation.
func newInputCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSchemaError converts a jsonschema.ValidationError into a schema.Error
// listing every violation with its instance location.
func toSchemaError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
