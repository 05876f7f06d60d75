package expressions

import "context"

// Engine evaluates a script against a data environment.
// Implementations: CEL (branch conditions), Expr and GoJQ (code actions).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
