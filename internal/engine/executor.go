package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/stepflow/internal/connections"
	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/internal/pieces"
	"github.com/rendis/stepflow/internal/state"
	"github.com/rendis/stepflow/internal/storage"
	"github.com/rendis/stepflow/pkg/schema"
)

// Executor runs flows.
type Executor interface {
	// Run compiles the flow, seeds a fresh ExecutionState with the configs
	// and trigger output, and walks the action chain to completion.
	//
	// A FAILED action is a normal outcome reported in the RunResult. The
	// returned error is reserved for invalid requests, internal invariant
	// violations and context cancellation.
	Run(ctx context.Context, req RunRequest) (*schema.RunResult, error)
}

// RunRequest is the input of one flow execution.
type RunRequest struct {
	Flow          *schema.Flow
	Configs       map[string]any
	TriggerOutput any
	RunID         string // optional, generated when empty
}

// ExecutorConfig holds the collaborators of the executor. Every field is
// optional: actions that need a missing collaborator fail at run time.
type ExecutorConfig struct {
	Pieces      pieces.Executor
	Storage     storage.Service
	Connections connections.Service
	Store       RunStore
	Observer    Observer
	Logger      *slog.Logger
}

// executorImpl is the concrete Executor implementation.
type executorImpl struct {
	pieces   pieces.Executor
	storage  storage.Service
	store    RunStore
	observer Observer
	logger   *slog.Logger

	resolver  *expressions.Resolver
	celEngine *expressions.CELEngine
	scripts   map[string]expressions.Engine
}

// flowRun tracks a single in-flight flow execution.
type flowRun struct {
	*executorImpl
	id    string
	plan  *Plan
	state *state.ExecutionState
}

// NewExecutor creates a new Executor with the given collaborators.
func NewExecutor(cfg ExecutorConfig) Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	// CEL engine is optional: BRANCH actions check nil before use.
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		logger.Warn("CEL engine unavailable, BRANCH actions will fail", slog.String("error", err.Error()))
	}

	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()

	return &executorImpl{
		pieces:    cfg.Pieces,
		storage:   cfg.Storage,
		store:     cfg.Store,
		observer:  observer,
		logger:    logger,
		resolver:  expressions.NewResolver(cfg.Connections, logger),
		celEngine: celEngine,
		scripts: map[string]expressions.Engine{
			exprEngine.Name(): exprEngine,
			jqEngine.Name():   jqEngine,
		},
	}
}

// Run executes one flow.
func (e *executorImpl) Run(ctx context.Context, req RunRequest) (*schema.RunResult, error) {
	plan, err := Compile(req.Flow)
	if err != nil {
		return nil, err
	}

	run := &flowRun{
		executorImpl: e,
		id:           req.RunID,
		plan:         plan,
		state:        state.New(),
	}
	if run.id == "" {
		run.id = uuid.New().String()
	}
	ctx = logging.WithRunID(ctx, run.id)

	if err := run.seed(req); err != nil {
		return nil, err
	}

	result := &schema.RunResult{
		RunID:     run.id,
		FlowName:  req.Flow.DisplayName,
		StartedAt: time.Now().UTC(),
	}
	e.logger.InfoContext(ctx, "run started",
		slog.String("trigger", plan.Trigger()),
		slog.Int("actions", plan.Len()),
	)

	ok, err := run.iterateFlow(ctx, plan.start, nil)
	if err != nil {
		e.logger.ErrorContext(ctx, "run aborted", slog.String("error", err.Error()))
		return nil, err
	}

	result.DurationMs = time.Since(result.StartedAt).Milliseconds()
	result.Steps = run.state.Steps()
	result.Status = schema.StepStatusSucceeded
	if !ok {
		result.Status = schema.StepStatusFailed
		if name, out, found := result.Steps.FirstFailed(); found {
			result.FailedStep = name
			result.ErrorMessage = out.ErrorMessage
			result.ErrorCode = out.ErrorCode
		}
	}

	e.logger.InfoContext(ctx, "run finished",
		slog.String("status", string(result.Status)),
		slog.Int64("duration_ms", result.DurationMs),
	)
	e.observer.RunFinished(ctx, result)

	if e.store != nil {
		if err := e.store.SaveRun(ctx, result); err != nil {
			return result, schema.NewErrorf(schema.ErrCodeStore, "save run %s: %s", run.id, err.Error()).WithCause(err)
		}
	}
	return result, nil
}

// seed inserts the configs snapshot and the trigger output.
func (r *flowRun) seed(req RunRequest) error {
	if err := r.state.InsertConfigs(req.Configs); err != nil {
		return err
	}
	trigger, err := schema.Normalize(req.TriggerOutput)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "trigger output is not JSON-serializable: %s", err.Error()).
			WithStep(r.plan.Trigger()).WithCause(err)
	}
	out := (&schema.StepOutput{}).Succeed(trigger)
	return r.state.InsertStep(out, r.plan.Trigger(), nil)
}

// iterateFlow executes the chain starting at start within the scope
// addressed by ancestors. It stops at the first FAILED action and reports
// whether the whole chain succeeded. Loop bodies and branch chains re-enter
// it recursively.
func (r *flowRun) iterateFlow(ctx context.Context, start nodeID, ancestors state.Ancestors) (bool, error) {
	for id := start; id != noNode; id = r.plan.nodes[id].next {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		n := &r.plan.nodes[id]
		stepCtx := logging.WithStep(ctx, n.name)
		if len(ancestors) > 0 {
			stepCtx = logging.WithScope(stepCtx, ancestors.String())
		}

		began := time.Now()
		out, err := r.execute(stepCtx, id, ancestors)
		if err != nil {
			return false, err
		}
		elapsed := time.Since(began)
		out.Type = n.kind
		out.DurationMs = elapsed.Milliseconds()

		if err := r.state.InsertStep(out, n.name, ancestors); err != nil {
			return false, err
		}
		r.observer.StepFinished(stepCtx, StepEvent{
			RunID:    r.id,
			Name:     n.name,
			Type:     n.kind,
			Status:   out.Status,
			Code:     out.ErrorCode,
			Scope:    ancestors.String(),
			Duration: elapsed,
		})

		if out.Failed() {
			r.logger.WarnContext(stepCtx, "action failed",
				slog.String("type", string(n.kind)),
				slog.String("code", out.ErrorCode),
				slog.String("error", out.ErrorMessage),
			)
			return false, nil
		}
		r.logger.DebugContext(stepCtx, "action succeeded",
			slog.String("type", string(n.kind)),
			slog.Int64("duration_ms", out.DurationMs),
		)
	}
	return true, nil
}

// execute dispatches a node to the handler of its kind.
func (r *flowRun) execute(ctx context.Context, id nodeID, ancestors state.Ancestors) (*schema.StepOutput, error) {
	n := &r.plan.nodes[id]
	switch n.kind {
	case schema.ActionTypePiece:
		return r.executePiece(ctx, n)
	case schema.ActionTypeLoop:
		return r.executeLoop(ctx, n, ancestors)
	case schema.ActionTypeStorage:
		return r.executeStorage(ctx, n)
	case schema.ActionTypeBranch:
		return r.executeBranch(ctx, n, ancestors)
	case schema.ActionTypeCode:
		return r.executeCode(ctx, n)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "no handler for action type %q", n.kind).WithStep(n.name)
	}
}
