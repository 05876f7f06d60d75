package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("actions.fetch.settings.pieceName", ErrCodeValidation, "action not found")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "actions.fetch.settings.pieceName", r.Errors[0].Path)
	assert.Equal(t, ErrCodeValidation, r.Errors[0].Code)
	assert.Equal(t, "action not found", r.Errors[0].Message)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_AddWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("actions.loop.settings.items", ErrCodeValidation, "loop has no items")

	assert.True(t, r.Valid(), "warnings alone should not make result invalid")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")
	r1.AddWarning("/", ErrCodeValidation, "warn1")

	r2 := &ValidationResult{}
	r2.AddError("actions.loop", ErrCodeNotFound, "err2")
	r2.AddWarning("actions.loop.firstLoopAction", ErrCodeValidation, "warn2")

	r1.Merge(r2)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 2)
}

func TestValidationResult_MergeNil(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/", ErrCodeValidation, "err")
	r.Merge(nil)
	assert.Len(t, r.Errors, 1)
}

func TestValidationResult_ToError_Valid(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("/", ErrCodeValidation, "just a warning")
	assert.Nil(t, r.ToError())
}

func TestValidationResult_ToError_SingleError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("actions.fetch.settings.pieceName", ErrCodeValidation, "action not found")

	err := r.ToError()
	require.NotNil(t, err)

	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, se.Code)
	assert.Equal(t, "action not found", se.Message)
	assert.Equal(t, 1, se.Details["error_count"])
}

func TestValidationResult_ToError_MultipleErrors(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/", ErrCodeValidation, "err1")
	r.AddError("/", ErrCodeValidation, "err2")
	r.AddWarning("/", ErrCodeValidation, "warn1")

	err := r.ToError()
	require.NotNil(t, err)

	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Contains(t, se.Message, "2 errors")
	assert.Equal(t, 2, se.Details["error_count"])
	assert.Equal(t, 1, se.Details["warning_count"])
}

func TestValidationResult_StageTagsIssues(t *testing.T) {
	graph := NewValidationResult(StageGraph)
	graph.AddWarning("actions.a", ErrCodeValidation, "w")

	structural := NewValidationResult(StageStructural)
	structural.AddError("/", ErrCodeValidation, "bad type")

	r := NewValidationResult(StageGraph)
	r.Merge(graph)
	assert.Equal(t, StageGraph, r.Stage)
	assert.Empty(t, r.FailedStage())

	r.Merge(structural)
	assert.Equal(t, StageStructural, r.Stage)
	assert.Equal(t, StageStructural, r.FailedStage())
	assert.Equal(t, StageGraph, r.Warnings[0].Stage)

	err := r.ToError()
	require.Error(t, err)
	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "structural: bad type", se.Message)
	assert.Equal(t, StageStructural, se.Details["stage"])
}

func TestValidationResult_MergeKeepsStageWhenUntagged(t *testing.T) {
	r := NewValidationResult(StageSemantic)
	r.Merge(&ValidationResult{})
	assert.Equal(t, StageSemantic, r.Stage)
}
