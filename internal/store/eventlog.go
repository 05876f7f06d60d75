package store

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/pkg/schema"
)

// EventLog journals finished steps as they happen. It implements
// engine.Observer, so a run that never reaches SaveRun still leaves a trace.
type EventLog struct {
	store  Store
	logger *slog.Logger
}

// NewEventLog wraps a Store to provide the step journal.
func NewEventLog(s Store, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{store: s, logger: logger}
}

// StepFinished appends the step to the journal. Write failures are logged
// and never interrupt the run.
func (el *EventLog) StepFinished(ctx context.Context, ev engine.StepEvent) {
	e := &StepEvent{
		RunID:      ev.RunID,
		Step:       ev.Name,
		Scope:      ev.Scope,
		ActionType: ev.Type,
		Status:     ev.Status,
		ErrorCode:  ev.Code,
		DurationMs: ev.Duration.Milliseconds(),
	}
	if err := el.store.AppendEvent(ctx, e); err != nil {
		logging.LogWith(ctx, el.logger).WarnContext(ctx, "journal append failed", "error", err)
	}
}

// RunFinished implements engine.Observer.
func (el *EventLog) RunFinished(ctx context.Context, result *schema.RunResult) {
	logging.LogWith(ctx, el.logger).DebugContext(ctx, "run journaled",
		"status", result.Status, "steps", result.Steps.Len())
}

// GetEvents returns events for a run with sequence > since, ordered by sequence.
func (el *EventLog) GetEvents(ctx context.Context, runID string, since int64) ([]*StepEvent, error) {
	return el.store.GetEvents(ctx, runID, since)
}

// Replay rebuilds the last known event of every step of a run, keyed by its
// scoped path ("/fetch", "/loop[1]/echo"). Returns an error if the journal
// has sequence gaps.
func (el *EventLog) Replay(ctx context.Context, runID string) (map[string]*StepEvent, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	steps := make(map[string]*StepEvent, len(events))
	for i, e := range events {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
		steps[StepPath(e.Scope, e.Step)] = e
	}
	return steps, nil
}

// StepPath joins a scope and a step name.
func StepPath(scope, step string) string {
	if scope == "" {
		scope = "/"
	}
	return path.Join(scope, step)
}

var _ engine.Observer = (*EventLog)(nil)
