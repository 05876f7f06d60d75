package engine

import (
	"context"
	"log/slog"

	"github.com/rendis/stepflow/internal/state"
	"github.com/rendis/stepflow/pkg/schema"
)

// --- Loop action ---

// executeLoop iterates the resolved items, running the loop body once per
// item inside its own iteration scope. It fails fast: the first failing
// iteration stops the loop and lends its first failed child's message.
//
// The loop output is recorded before the first iteration so the body can
// resolve ${loop.current_item}; only its LoopView is ever published.
func (r *flowRun) executeLoop(ctx context.Context, n *node, ancestors state.Ancestors) (*schema.StepOutput, error) {
	out := &schema.StepOutput{Status: schema.StepStatusRunning}

	settings, err := r.resolver.ResolveMap(ctx, n.settings, r.state.Project())
	if err != nil {
		return out.Fail(err), nil
	}
	out.Input = settings

	var cfg schema.LoopSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return out.Fail(err), nil
	}
	items, err := loopItems(cfg.Items)
	if err != nil {
		return out.Fail(err), nil
	}

	loop := &schema.LoopOutput{
		CurrentIteration: 1,
		Iterations:       []*schema.StepRecord{},
	}
	out.Output = loop
	if err := r.state.InsertStep(out, n.name, ancestors); err != nil {
		return nil, err
	}

	for i, item := range items {
		scope := ancestors.Push(n.name, i)
		loop.CurrentIteration = i + 1
		loop.CurrentItem = item
		loop.Iterations = append(loop.Iterations, schema.NewStepRecord())
		if err := r.state.UpdateLastStep(loop.View(), n.name); err != nil {
			return nil, err
		}

		if n.body == noNode {
			continue
		}
		ok, err := r.iterateFlow(ctx, n.body, scope)
		if err != nil {
			return nil, err
		}
		if !ok {
			failed, err := lastIterationFailure(n.name, loop)
			if err != nil {
				return nil, err
			}
			r.logger.DebugContext(ctx, "loop stopped",
				slog.Int("iteration", i+1),
				slog.Int("items", len(items)),
			)
			out.Status = schema.StepStatusFailed
			out.ErrorMessage = failed.ErrorMessage
			out.ErrorCode = failed.ErrorCode
			return out, nil
		}
	}

	out.Status = schema.StepStatusSucceeded
	return out, nil
}

// loopItems interprets the resolved items setting. An absent value or the
// empty string (a template that resolved to nothing) means no items.
func loopItems(v any) ([]any, error) {
	switch items := v.(type) {
	case nil:
		return nil, nil
	case string:
		if items == "" {
			return nil, nil
		}
	case []any:
		return items, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "loop items must be an array, got %T", v)
}

// lastIterationFailure returns the first FAILED child of the most recent
// iteration. Earlier iterations are never searched since the loop stops at
// the first failing one.
func lastIterationFailure(name string, loop *schema.LoopOutput) (*schema.StepOutput, error) {
	if loop.Iterations == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "loop %q has no iterations record", name).WithStep(name)
	}
	if len(loop.Iterations) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "loop %q body failed before any iteration opened", name).WithStep(name)
	}
	last := loop.Iterations[len(loop.Iterations)-1]
	_, failed, ok := last.FirstFailed()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInternal,
			"loop %q body reported failure but iteration %d recorded none", name, len(loop.Iterations)).WithStep(name)
	}
	return failed, nil
}

// --- Branch action ---

// executeBranch evaluates the CEL condition against configs and steps and
// runs the matching chain in the branch's own scope. A failing chain fails
// the branch with its first failed action's message.
func (r *flowRun) executeBranch(ctx context.Context, n *node, ancestors state.Ancestors) (*schema.StepOutput, error) {
	out := &schema.StepOutput{Status: schema.StepStatusRunning}

	var cfg schema.BranchSettings
	if err := decodeSettings(n.settings, &cfg); err != nil {
		return out.Fail(err), nil
	}
	out.Input = map[string]any{"condition": cfg.Condition}

	if r.celEngine == nil {
		return out.Fail(schema.NewErrorf(schema.ErrCodeExpression, "branch %s requires the CEL engine (not available)", n.name)), nil
	}
	proj := r.state.Project()
	matched, err := r.celEngine.EvaluateBool(ctx, cfg.Condition, map[string]any{
		"configs": proj.Configs,
		"steps":   proj.Steps,
	})
	if err != nil {
		return out.Fail(err), nil
	}
	out.Output = schema.BranchOutput{Condition: matched}

	next := n.onFailure
	if matched {
		next = n.onSuccess
	}
	if next == noNode {
		out.Status = schema.StepStatusSucceeded
		return out, nil
	}

	if err := r.state.InsertStep(out, n.name, ancestors); err != nil {
		return nil, err
	}
	ok, err := r.iterateFlow(ctx, next, ancestors)
	if err != nil {
		return nil, err
	}
	if ok {
		out.Status = schema.StepStatusSucceeded
		return out, nil
	}

	record, err := r.state.Scope(ancestors)
	if err != nil {
		return nil, err
	}
	_, failed, found := record.FirstFailed()
	if !found {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "branch %q chain reported failure but recorded none", n.name).WithStep(n.name)
	}
	out.Status = schema.StepStatusFailed
	out.ErrorMessage = failed.ErrorMessage
	out.ErrorCode = failed.ErrorCode
	return out, nil
}
