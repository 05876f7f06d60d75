package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/internal/diagram"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

func init() {
	color.NoColor = true
}

func TestPrintRunResult_NestsLoopIterations(t *testing.T) {
	iter := schema.NewStepRecord()
	iter.Set("echo", &schema.StepOutput{Type: schema.ActionTypePiece, Status: schema.StepStatusSucceeded})

	steps := schema.NewStepRecord()
	steps.Set("trigger", &schema.StepOutput{Status: schema.StepStatusSucceeded})
	steps.Set("loop", &schema.StepOutput{
		Type:   schema.ActionTypeLoop,
		Status: schema.StepStatusSucceeded,
		Output: &schema.LoopOutput{Iterations: []*schema.StepRecord{iter}},
	})
	steps.Set("last", (&schema.StepOutput{Type: schema.ActionTypePiece}).Fail(schema.NewError(schema.ErrCodePiece, "boom")))

	var buf bytes.Buffer
	printRunResult(&buf, &schema.RunResult{
		RunID:        "r1",
		FlowName:     "orders",
		Status:       schema.StepStatusFailed,
		Steps:        steps,
		FailedStep:   "last",
		ErrorCode:    schema.ErrCodePiece,
		ErrorMessage: "boom",
		DurationMs:   12,
	})

	out := buf.String()
	assert.Contains(t, out, "run orders (r1) FAILED 12ms")
	assert.Contains(t, out, "  ✓ loop LOOP_ON_ITEMS\n")
	assert.Contains(t, out, "    [0]\n")
	assert.Contains(t, out, "      ✓ echo PIECE\n")
	assert.Contains(t, out, "  ✗ last PIECE PIECE_ERROR: boom\n")
	assert.Contains(t, out, "✗ last failed: PIECE_ERROR: boom\n")
}

func TestPrintValidation(t *testing.T) {
	r := schema.NewValidationResult(schema.StageSemantic)
	r.AddWarning("actions.loop", schema.ErrCodeValidation, "loop has no body")

	var buf bytes.Buffer
	assert.True(t, printValidation(&buf, r))
	assert.Equal(t, "! actions.loop loop has no body\n", buf.String())

	r.AddError("actions.a.settings.pieceName", schema.ErrCodeNotFound, `piece "x" not registered`)
	buf.Reset()
	assert.False(t, printValidation(&buf, r))
	assert.Equal(t, "✗ [semantic] actions.a.settings.pieceName piece \"x\" not registered\n! actions.loop loop has no body\n", buf.String())
}

func TestPrintRunSummaries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRunSummaries(&buf, nil))
	assert.Equal(t, "no runs found\n", buf.String())

	buf.Reset()
	require.NoError(t, printRunSummaries(&buf, []*store.RunSummary{{
		RunID:      "r1",
		FlowName:   "orders",
		Status:     schema.StepStatusSucceeded,
		StartedAt:  time.Now(),
		DurationMs: 1500,
	}}))
	assert.Contains(t, buf.String(), "RUN ID")
	assert.Contains(t, buf.String(), "orders")
	assert.Contains(t, buf.String(), "1.5s")
}

func TestPrintJournal(t *testing.T) {
	var buf bytes.Buffer
	printJournal(&buf, []*store.StepEvent{
		{Sequence: 1, Step: "echo", Scope: "/loop[0]", Status: schema.StepStatusSucceeded},
		{Sequence: 2, Step: "last", Scope: "/", Status: schema.StepStatusFailed, ErrorCode: schema.ErrCodePiece},
	})
	assert.Contains(t, buf.String(), "  1 ✓ /loop[0]/echo 0s\n")
	assert.Contains(t, buf.String(), "  2 ✗ /last PIECE_ERROR 0s\n")
}

func TestRunFilter(t *testing.T) {
	t.Cleanup(func() { runsStatusFlag, runsSinceFlag = "", 0 })

	runsStatusFlag, runsSinceFlag = "failed", time.Hour
	f, err := runFilter()
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFailed, f.Status)
	require.NotNil(t, f.Since)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), *f.Since, time.Minute)

	runsStatusFlag = "running"
	_, err = runFilter()
	assert.Error(t, err)
}

func TestParseConnectionValue(t *testing.T) {
	assert.Equal(t, map[string]any{"token": "abc"}, parseConnectionValue(`{"token":"abc"}`))
	assert.Equal(t, "plain-token", parseConnectionValue("plain-token"))
}

func TestRenderDiagram_Formats(t *testing.T) {
	model, err := diagram.Build(&schema.Flow{Trigger: schema.Trigger{Name: "t"}}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderDiagram(&buf, model, "mermaid"))
	assert.Contains(t, buf.String(), "graph TD")

	buf.Reset()
	require.NoError(t, renderDiagram(&buf, model, "ascii"))
	assert.Contains(t, buf.String(), "│ End │")

	assert.Error(t, renderDiagram(&buf, model, "svg"))
}
