package state

import (
	"github.com/rendis/stepflow/pkg/schema"
)

// Projection is the read-only view of an ExecutionState used for template
// resolution. Steps maps every action name to its most recently published
// output.
type Projection struct {
	Configs map[string]any
	Steps   map[string]any
}

// ExecutionState is the run-scoped store of configs and step results.
//
// It holds two views of the steps:
//   - the record tree, where a loop's children live inside the loop's
//     LoopOutput.Iterations, reachable through Ancestors;
//   - the published map, a flat name -> output snapshot that templates
//     resolve against.
//
// Execution within a run is strictly sequential, so the state is not
// safe for concurrent use and needs no locking.
type ExecutionState struct {
	configs    map[string]any
	configured bool
	steps      *schema.StepRecord
	published  map[string]any
}

// New creates an empty ExecutionState.
func New() *ExecutionState {
	return &ExecutionState{
		configs:   map[string]any{},
		steps:     schema.NewStepRecord(),
		published: make(map[string]any),
	}
}

// InsertConfigs seeds the configs snapshot. It may be called once per run;
// the snapshot is deep-copied and immutable afterwards.
func (s *ExecutionState) InsertConfigs(configs map[string]any) error {
	if s.configured {
		return schema.NewError(schema.ErrCodeInternal, "configs already inserted for this run")
	}
	normalized, err := schema.Normalize(configs)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "configs are not JSON-serializable: %s", err.Error()).WithCause(err)
	}
	if m, ok := normalized.(map[string]any); ok {
		s.configs = m
	}
	s.configured = true
	return nil
}

// InsertStep records output under name in the scope addressed by ancestors
// and publishes output.Output as the step's latest value. Loop outputs are
// published through their LoopView so the iteration history stays out of
// the resolution scope.
func (s *ExecutionState) InsertStep(output *schema.StepOutput, name string, ancestors Ancestors) error {
	if output == nil {
		return schema.NewErrorf(schema.ErrCodeInternal, "nil step output for %q", name).WithStep(name)
	}
	target, err := s.Scope(ancestors)
	if err != nil {
		return err
	}
	target.Set(name, output)
	if loop, ok := output.Output.(*schema.LoopOutput); ok {
		return s.UpdateLastStep(loop.View(), name)
	}
	return s.UpdateLastStep(output.Output, name)
}

// UpdateLastStep replaces the published value of name with a deep copy of
// view, leaving the record tree untouched. Loops use it to publish their
// LoopView on every iteration.
func (s *ExecutionState) UpdateLastStep(view any, name string) error {
	normalized, err := schema.Normalize(view)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeInternal, "publish %q: %s", name, err.Error()).
			WithStep(name).WithCause(err)
	}
	s.published[name] = normalized
	return nil
}

// Scope returns the record that holds the steps of the chain addressed by
// ancestors. Every ancestor must name a loop whose iteration has already
// been opened.
func (s *ExecutionState) Scope(ancestors Ancestors) (*schema.StepRecord, error) {
	target := s.steps
	for _, anc := range ancestors {
		parent, ok := target.Get(anc.Loop)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInternal,
				"ancestor loop %q has no recorded output at %s", anc.Loop, ancestors).WithStep(anc.Loop)
		}
		loop, ok := parent.Output.(*schema.LoopOutput)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInternal,
				"ancestor %q is not a loop (output %T)", anc.Loop, parent.Output).WithStep(anc.Loop)
		}
		if anc.Iteration < 0 || anc.Iteration >= len(loop.Iterations) {
			return nil, schema.NewErrorf(schema.ErrCodeInternal,
				"ancestor loop %q has no iteration %d (has %d)", anc.Loop, anc.Iteration, len(loop.Iterations)).WithStep(anc.Loop)
		}
		target = loop.Iterations[anc.Iteration]
	}
	return target, nil
}

// Project returns the resolution view of the state. The maps are fresh, but
// their values are shared with the state and must not be mutated.
func (s *ExecutionState) Project() Projection {
	steps := make(map[string]any, len(s.published))
	for name, v := range s.published {
		steps[name] = v
	}
	return Projection{Configs: s.configs, Steps: steps}
}

// Steps returns the top-level record tree.
func (s *ExecutionState) Steps() *schema.StepRecord {
	return s.steps
}

// Step returns the top-level output recorded under name.
func (s *ExecutionState) Step(name string) (*schema.StepOutput, bool) {
	return s.steps.Get(name)
}

// Configs returns the configs snapshot. It must not be mutated.
func (s *ExecutionState) Configs() map[string]any {
	return s.configs
}
