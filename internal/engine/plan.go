package engine

import (
	"github.com/rendis/stepflow/pkg/schema"
)

// nodeID addresses a node in a Plan arena.
type nodeID int

const noNode nodeID = -1

// node is one compiled action. next continues the chain of the same scope;
// body, onSuccess and onFailure start nested chains.
type node struct {
	name      string
	kind      schema.ActionType
	settings  map[string]any
	next      nodeID
	body      nodeID
	onSuccess nodeID
	onFailure nodeID
}

// Plan is the executable form of a Flow: every action of every chain stored
// in one arena and linked by index.
type Plan struct {
	trigger string
	start   nodeID
	nodes   []node
	index   map[string]nodeID
}

// validActionTypes is the set of recognized action types.
var validActionTypes = func() map[schema.ActionType]bool {
	m := make(map[schema.ActionType]bool, len(schema.ActionTypes))
	for _, t := range schema.ActionTypes {
		m[t] = true
	}
	return m
}()

// Compile validates a Flow and builds its Plan. Action names must be
// unique across the whole flow, trigger included, because every action
// publishes its output under its name.
func Compile(flow *schema.Flow) (*Plan, error) {
	if flow == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "flow is nil")
	}
	if flow.Trigger.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "trigger has empty name")
	}
	if schema.IsReservedName(flow.Trigger.Name) {
		return nil, reservedNameError(flow.Trigger.Name)
	}

	p := &Plan{
		trigger: flow.Trigger.Name,
		index:   map[string]nodeID{flow.Trigger.Name: noNode},
	}
	start, err := p.compileChain(flow.Trigger.NextAction, flow.Trigger.Name)
	if err != nil {
		return nil, err
	}
	p.start = start
	return p, nil
}

// compileChain appends the chain starting at a and returns the id of its
// first node. owner names the action that owns the chain, for messages.
func (p *Plan) compileChain(a *schema.Action, owner string) (nodeID, error) {
	first, prev := noNode, noNode
	for ; a != nil; a = a.NextAction {
		id, err := p.compileAction(a, owner)
		if err != nil {
			return noNode, err
		}
		if prev == noNode {
			first = id
		} else {
			p.nodes[prev].next = id
		}
		prev = id
		owner = a.Name
	}
	return first, nil
}

func reservedNameError(name string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "action name %q is reserved for templates", name).WithStep(name)
}

func (p *Plan) compileAction(a *schema.Action, prev string) (nodeID, error) {
	if a.Name == "" {
		return noNode, schema.NewErrorf(schema.ErrCodeValidation, "action after %q has empty name", prev)
	}
	if schema.IsReservedName(a.Name) {
		return noNode, reservedNameError(a.Name)
	}
	if _, exists := p.index[a.Name]; exists {
		return noNode, schema.NewErrorf(schema.ErrCodeValidation, "duplicate action name: %s", a.Name).WithStep(a.Name)
	}
	if !validActionTypes[a.Type] {
		return noNode, schema.NewErrorf(schema.ErrCodeValidation, "action %s has unknown type: %q", a.Name, a.Type).WithStep(a.Name)
	}
	if a.FirstLoopAction != nil && a.Type != schema.ActionTypeLoop {
		return noNode, schema.NewErrorf(schema.ErrCodeValidation, "action %s: firstLoopAction is only allowed on %s", a.Name, schema.ActionTypeLoop).WithStep(a.Name)
	}
	if (a.OnSuccessAction != nil || a.OnFailureAction != nil) && a.Type != schema.ActionTypeBranch {
		return noNode, schema.NewErrorf(schema.ErrCodeValidation, "action %s: branch chains are only allowed on %s", a.Name, schema.ActionTypeBranch).WithStep(a.Name)
	}

	id := nodeID(len(p.nodes))
	p.nodes = append(p.nodes, node{
		name:      a.Name,
		kind:      a.Type,
		settings:  a.Settings,
		next:      noNode,
		body:      noNode,
		onSuccess: noNode,
		onFailure: noNode,
	})
	p.index[a.Name] = id

	// Nested chains are appended after the owner, so ids stay stable.
	body, err := p.compileChain(a.FirstLoopAction, a.Name)
	if err != nil {
		return noNode, err
	}
	onSuccess, err := p.compileChain(a.OnSuccessAction, a.Name)
	if err != nil {
		return noNode, err
	}
	onFailure, err := p.compileChain(a.OnFailureAction, a.Name)
	if err != nil {
		return noNode, err
	}
	n := &p.nodes[id]
	n.body, n.onSuccess, n.onFailure = body, onSuccess, onFailure
	return id, nil
}

// Trigger returns the trigger name.
func (p *Plan) Trigger() string {
	return p.trigger
}

// Len returns the number of compiled actions, trigger excluded.
func (p *Plan) Len() int {
	return len(p.nodes)
}

// Has reports whether the flow defines an action (or trigger) named name.
func (p *Plan) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Chain returns the action names of the top-level chain in order.
func (p *Plan) Chain() []string {
	var names []string
	for id := p.start; id != noNode; id = p.nodes[id].next {
		names = append(names, p.nodes[id].name)
	}
	return names
}
