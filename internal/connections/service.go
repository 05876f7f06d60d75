package connections

import (
	"context"

	"github.com/rendis/stepflow/pkg/schema"
)

// Connection is a named credential payload, e.g. an OAuth token set.
type Connection struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Service looks up connection secrets on demand. Every failure, including a
// connection that does not exist, is an error with code CONNECTION_ERROR.
type Service interface {
	Obtain(ctx context.Context, name string) (*Connection, error)
}

// NotFound reports a missing connection.
func NotFound(name string) error {
	return schema.NewErrorf(schema.ErrCodeConnection, "connection %q not found", name).
		WithDetails(map[string]any{"connection": name})
}
