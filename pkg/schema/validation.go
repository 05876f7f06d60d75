package schema

import "fmt"

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationStage names a step of the flow validation pipeline. Stages run
// in order; the first stage reporting errors ends the pipeline.
type ValidationStage string

const (
	StageGraph      ValidationStage = "graph"
	StageStructural ValidationStage = "structural"
	StageSemantic   ValidationStage = "semantic"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
	Stage    ValidationStage    `json:"stage,omitempty"`
}

// ValidationResult aggregates the issues of the stages that ran. Stage is
// the last of them and tags every issue added through AddError/AddWarning.
type ValidationResult struct {
	Stage    ValidationStage   `json:"stage,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// NewValidationResult starts an empty result for stage.
func NewValidationResult(stage ValidationStage) *ValidationResult {
	return &ValidationResult{Stage: stage}
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// FailedStage returns the stage of the first error, or "" for a valid result.
func (r *ValidationResult) FailedStage() ValidationStage {
	if r.Valid() {
		return ""
	}
	return r.Errors[0].Stage
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError, Stage: r.Stage,
	})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning, Stage: r.Stage,
	})
}

// Merge appends the issues of a later stage and advances Stage to it.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if other.Stage != "" {
		r.Stage = other.Stage
	}
}

// ToError converts the result to an *Error if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}
	if stage := r.FailedStage(); stage != "" {
		msg = fmt.Sprintf("%s: %s", stage, msg)
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"stage":         r.FailedStage(),
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
