package schema

import "time"

// RunResult is the outcome of one flow execution.
type RunResult struct {
	RunID        string      `json:"runId"`
	FlowName     string      `json:"flowName,omitempty"`
	Status       StepStatus  `json:"status"`
	Steps        *StepRecord `json:"steps"`
	FailedStep   string      `json:"failedStep,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	StartedAt    time.Time   `json:"startedAt"`
	DurationMs   int64       `json:"durationMs"`
}

// Succeeded reports whether every top-level step succeeded.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Status == StepStatusSucceeded
}
