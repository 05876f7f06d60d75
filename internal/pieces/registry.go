package pieces

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rendis/stepflow/pkg/schema"
)

// InputValidator checks action props against the action's input schema.
type InputValidator interface {
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// Registry is the in-process, thread-safe Executor. Pieces are looked up by
// name and actions by name within their piece.
type Registry struct {
	mu     sync.RWMutex
	pieces map[string]Piece

	validator InputValidator
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithValidator validates props against each action's input schema before
// execution.
func WithValidator(v InputValidator) RegistryOption {
	return func(r *Registry) { r.validator = v }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		pieces: make(map[string]Piece),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a piece. Returns error on duplicate name.
func (r *Registry) Register(p Piece) error {
	if p == nil {
		return schema.NewError(schema.ErrCodeValidation, "piece is nil")
	}
	name := p.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "piece name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pieces[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "piece %q already registered", name)
	}
	r.pieces[name] = p
	return nil
}

// Get retrieves a piece by name.
func (r *Registry) Get(name string) (Piece, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pieces[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "piece %q not found", name)
	}
	return p, nil
}

// Has reports whether the piece exists and, when action is non-empty,
// whether it exposes that action.
func (r *Registry) Has(piece, action string) bool {
	p, err := r.Get(piece)
	if err != nil {
		return false
	}
	if action == "" {
		return true
	}
	_, ok := p.Action(action)
	return ok
}

// List returns all registered pieces sorted by name.
func (r *Registry) List() []PieceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PieceInfo, 0, len(r.pieces))
	for _, p := range r.pieces {
		infos = append(infos, PieceInfo{Name: p.Name(), Actions: p.Actions()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Count returns the number of registered pieces.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pieces)
}

// Exec runs one action of one piece. Every error names the piece.
func (r *Registry) Exec(ctx context.Context, pieceName, actionName string, props map[string]any) (any, error) {
	p, err := r.Get(pieceName)
	if err != nil {
		return nil, err
	}
	action, ok := p.Action(actionName)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"action %q not found in piece %q", actionName, pieceName)
	}
	if props == nil {
		props = map[string]any{}
	}

	if r.validator != nil {
		if in := action.Schema().InputSchema; len(in) > 0 {
			if err := r.validator.ValidateInput(props, in); err != nil {
				return nil, wrapActionError(pieceName, actionName, err)
			}
		}
	}
	if err := action.Validate(props); err != nil {
		return nil, wrapActionError(pieceName, actionName, err)
	}

	r.logger.DebugContext(ctx, "executing piece action",
		slog.String("piece", pieceName), slog.String("action", actionName))

	out, err := action.Execute(ctx, props)
	if err != nil {
		return nil, wrapActionError(pieceName, actionName, err)
	}
	return out, nil
}

// wrapActionError prefixes the piece and action names, keeping the code of
// a structured cause.
func wrapActionError(pieceName, actionName string, err error) error {
	code := schema.CodeOf(err)
	if code == schema.ErrCodeInternal {
		code = schema.ErrCodePiece
	}
	wrapped := schema.NewErrorf(code, "piece %q action %q: %s", pieceName, actionName, schema.MessageOf(err)).
		WithCause(err)
	if se, ok := err.(*schema.Error); ok && se.Details != nil {
		wrapped.WithDetails(se.Details)
	}
	return wrapped
}

var _ Executor = (*Registry)(nil)
