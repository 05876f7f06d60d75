package pieces

import (
	"context"
	"encoding/json"
	"sort"
)

// Executor is the Piece Execution boundary used by PIECE actions. Exec
// fails when the piece or the action is unknown, with a message naming
// which one.
type Executor interface {
	Exec(ctx context.Context, pieceName, actionName string, props map[string]any) (any, error)
}

// Action is one named operation exposed by a piece.
type Action interface {
	Name() string
	Schema() ActionSchema
	Validate(props map[string]any) error
	Execute(ctx context.Context, props map[string]any) (any, error)
}

// ActionSchema describes the input contract of an action.
type ActionSchema struct {
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Piece is a connector exposing named actions.
type Piece interface {
	Name() string
	Action(name string) (Action, bool)
	Actions() []ActionInfo
}

// ActionInfo is a summary of an action for listing.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PieceInfo is a summary of a registered piece for listing.
type PieceInfo struct {
	Name    string       `json:"name"`
	Actions []ActionInfo `json:"actions"`
}

// StaticPiece is a Piece with a fixed, in-process set of actions.
type StaticPiece struct {
	name    string
	actions map[string]Action
}

// NewPiece creates a StaticPiece. Later actions replace earlier ones with
// the same name.
func NewPiece(name string, actions ...Action) *StaticPiece {
	p := &StaticPiece{name: name, actions: make(map[string]Action, len(actions))}
	for _, a := range actions {
		p.actions[a.Name()] = a
	}
	return p
}

func (p *StaticPiece) Name() string { return p.name }

func (p *StaticPiece) Action(name string) (Action, bool) {
	a, ok := p.actions[name]
	return a, ok
}

// Actions lists the piece's actions sorted by name.
func (p *StaticPiece) Actions() []ActionInfo {
	infos := make([]ActionInfo, 0, len(p.actions))
	for _, a := range p.actions {
		infos = append(infos, ActionInfo{Name: a.Name(), Description: a.Schema().Description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// ActionFunc adapts a plain function into an Action without input schema.
type ActionFunc struct {
	ActionName  string
	Description string
	Fn          func(ctx context.Context, props map[string]any) (any, error)
}

func (f *ActionFunc) Name() string { return f.ActionName }

func (f *ActionFunc) Schema() ActionSchema {
	return ActionSchema{Description: f.Description}
}

func (f *ActionFunc) Validate(map[string]any) error { return nil }

func (f *ActionFunc) Execute(ctx context.Context, props map[string]any) (any, error) {
	return f.Fn(ctx, props)
}
