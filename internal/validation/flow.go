package validation

import (
	"errors"

	"github.com/rendis/stepflow/pkg/schema"
)

// FlowValidator orchestrates the three-stage validation pipeline:
// 1. Graph (shared nodes, duplicate names, misplaced chains)
// 2. Structural (JSON Schema)
// 3. Semantic (piece refs, template refs, empty loops and branches)
type FlowValidator struct {
	jsonSchema *JSONSchemaValidator
	pieces     PieceLookup
}

// NewFlowValidator creates a FlowValidator.
// lookup may be nil to skip piece existence checks.
func NewFlowValidator(lookup PieceLookup) (*FlowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &FlowValidator{
		jsonSchema: jsv,
		pieces:     lookup,
	}, nil
}

// Validate runs the stages in order and stops after the first one that
// reports errors. The graph stage runs first because a cyclic flow cannot be
// serialized for the structural stage. result.Stage names the last stage run.
func (fv *FlowValidator) Validate(flow *schema.Flow) *schema.ValidationResult {
	result := schema.NewValidationResult(schema.StageGraph)
	if flow == nil {
		result.AddError("/", schema.ErrCodeValidation, "flow is nil")
		return result
	}

	var actions []located
	stages := []func() *schema.ValidationResult{
		func() *schema.ValidationResult {
			var r *schema.ValidationResult
			actions, r = validateGraph(flow)
			return r
		},
		func() *schema.ValidationResult { return validateStructural(fv.jsonSchema, flow) },
		func() *schema.ValidationResult { return validateSemantic(flow, actions, fv.pieces) },
	}
	for _, stage := range stages {
		result.Merge(stage())
		if !result.Valid() {
			break
		}
	}
	return result
}

// ValidateFlow satisfies the Validator interface.
func (fv *FlowValidator) ValidateFlow(flow *schema.Flow) error {
	return fv.Validate(flow).ToError()
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (fv *FlowValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return fv.jsonSchema.ValidateInput(input, inputSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateFlow, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, flow *schema.Flow) *schema.ValidationResult {
	result := schema.NewValidationResult(schema.StageStructural)

	err := v.ValidateFlow(flow)
	if err == nil {
		return result
	}

	var se *schema.Error
	if !errors.As(err, &se) {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if se.Details != nil {
		if violations, ok := se.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, se.Message)
	return result
}

var _ Validator = (*FlowValidator)(nil)
