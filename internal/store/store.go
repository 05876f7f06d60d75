package store

import (
	"context"

	"github.com/rendis/stepflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, result *schema.RunResult) error
	GetRun(ctx context.Context, id string) (*schema.RunResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunSummary, error)
	DeleteRun(ctx context.Context, id string) error

	// Step journal (append-only)
	AppendEvent(ctx context.Context, event *StepEvent) error
	GetEvents(ctx context.Context, runID string, since int64) ([]*StepEvent, error)

	// Secrets
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
