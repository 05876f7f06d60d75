package engine

import (
	"context"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// StepEvent describes one finished action execution.
type StepEvent struct {
	RunID    string
	Name     string
	Type     schema.ActionType
	Status   schema.StepStatus
	Code     string // error code, empty on success
	Scope    string // loop nesting path, "/" at top level
	Duration time.Duration
}

// Observer receives execution callbacks. Calls are made synchronously from
// the run goroutine and must not block.
type Observer interface {
	StepFinished(ctx context.Context, ev StepEvent)
	RunFinished(ctx context.Context, result *schema.RunResult)
}

// RunStore persists finished runs. Satisfied by *store.LibSQLStore.
type RunStore interface {
	SaveRun(ctx context.Context, result *schema.RunResult) error
}

type nopObserver struct{}

func (nopObserver) StepFinished(context.Context, StepEvent) {}
func (nopObserver) RunFinished(context.Context, *schema.RunResult) {}

// Observers fans callbacks out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return nopObserver{}
	case 1:
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) StepFinished(ctx context.Context, ev StepEvent) {
	for _, o := range m {
		o.StepFinished(ctx, ev)
	}
}

func (m multiObserver) RunFinished(ctx context.Context, result *schema.RunResult) {
	for _, o := range m {
		o.RunFinished(ctx, result)
	}
}
