package validation

import "github.com/rendis/stepflow/pkg/schema"

// Validator checks flow definitions for correctness before execution.
// Uses JSON Schema Draft 2020-12 for structure and piece input validation.
type Validator interface {
	ValidateFlow(flow *schema.Flow) error
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// PieceLookup reports whether a piece exposes an action. Satisfied by
// *pieces.Registry.
type PieceLookup interface {
	Has(piece, action string) bool
}
