package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StepStatus represents the lifecycle state of a step.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
)

// StepOutput is the recorded result of one action execution.
type StepOutput struct {
	Type         ActionType `json:"type,omitempty"`
	Status       StepStatus `json:"status"`
	Input        any        `json:"input,omitempty"`
	Output       any        `json:"output,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	DurationMs   int64      `json:"durationMs,omitempty"`
}

// Succeed marks the output SUCCEEDED with the given payload.
func (o *StepOutput) Succeed(output any) *StepOutput {
	o.Status = StepStatusSucceeded
	o.Output = output
	return o
}

// Fail marks the output FAILED and captures err's code and message.
func (o *StepOutput) Fail(err error) *StepOutput {
	o.Status = StepStatusFailed
	o.ErrorMessage = MessageOf(err)
	o.ErrorCode = CodeOf(err)
	return o
}

// Failed reports whether the step failed.
func (o *StepOutput) Failed() bool {
	return o != nil && o.Status == StepStatusFailed
}

// LoopOutput is the full record kept for a LOOP_ON_ITEMS action. Iterations
// holds the child step outputs of every iteration in order.
type LoopOutput struct {
	CurrentItem      any           `json:"current_item,omitempty"`
	CurrentIteration int           `json:"current_iteration"`
	Iterations       []*StepRecord `json:"iterations"`
}

// LoopView is the public projection of a running loop. It never carries the
// iteration history.
type LoopView struct {
	CurrentItem      any `json:"current_item,omitempty"`
	CurrentIteration int `json:"current_iteration"`
}

// View returns the public projection of the loop.
func (o *LoopOutput) View() LoopView {
	return LoopView{
		CurrentItem:      o.CurrentItem,
		CurrentIteration: o.CurrentIteration,
	}
}

// BranchOutput is the output of a BRANCH action.
type BranchOutput struct {
	Condition bool `json:"condition"`
}

// StepRecord maps action names to their outputs, preserving insertion order.
// The zero value is ready to use.
type StepRecord struct {
	names []string
	steps map[string]*StepOutput
}

// NewStepRecord creates an empty StepRecord.
func NewStepRecord() *StepRecord {
	return &StepRecord{steps: make(map[string]*StepOutput)}
}

// Set upserts the output recorded under name.
func (r *StepRecord) Set(name string, out *StepOutput) {
	if r.steps == nil {
		r.steps = make(map[string]*StepOutput)
	}
	if _, ok := r.steps[name]; !ok {
		r.names = append(r.names, name)
	}
	r.steps[name] = out
}

// Get returns the output recorded under name.
func (r *StepRecord) Get(name string) (*StepOutput, bool) {
	out, ok := r.steps[name]
	return out, ok
}

// Names returns the recorded action names in insertion order.
func (r *StepRecord) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of recorded actions.
func (r *StepRecord) Len() int {
	return len(r.names)
}

// FirstFailed returns the earliest recorded FAILED output.
func (r *StepRecord) FirstFailed() (string, *StepOutput, bool) {
	for _, name := range r.names {
		if out := r.steps[name]; out.Failed() {
			return name, out, true
		}
	}
	return "", nil, false
}

func (r *StepRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.steps[name])
		if err != nil {
			return nil, fmt.Errorf("marshal step %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *StepRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("step record: expected object, got %v", tok)
	}
	r.names = nil
	r.steps = make(map[string]*StepOutput)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("step record: expected key, got %v", tok)
		}
		out := &StepOutput{}
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("step record %q: %w", name, err)
		}
		r.Set(name, out)
	}
	_, err = dec.Token()
	return err
}

// Normalize converts a Go value into its plain JSON form (maps, slices,
// float64, string, bool, nil). The result shares no memory with v.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
