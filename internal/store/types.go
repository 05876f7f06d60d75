package store

import (
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// RunSummary is a run row without its step trace.
type RunSummary struct {
	RunID        string            `json:"run_id"`
	FlowName     string            `json:"flow_name,omitempty"`
	Status       schema.StepStatus `json:"status"`
	FailedStep   string            `json:"failed_step,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	DurationMs   int64             `json:"duration_ms"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   schema.StepStatus `json:"status,omitempty"`
	FlowName string            `json:"flow_name,omitempty"`
	Since    *time.Time        `json:"since,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// StepEvent is one entry of the step journal.
type StepEvent struct {
	ID         int64             `json:"id"`
	RunID      string            `json:"run_id"`
	Step       string            `json:"step"`
	Scope      string            `json:"scope"`
	ActionType schema.ActionType `json:"action_type,omitempty"`
	Status     schema.StepStatus `json:"status"`
	ErrorCode  string            `json:"error_code,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Timestamp  time.Time         `json:"timestamp"`
	Sequence   int64             `json:"sequence"`
}
