package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Overlay maps scoped step paths without iteration indices ("/fetch",
// "/loop/echo") to their recorded outcome.
type Overlay map[string]*StatusOverlay

// Build constructs a DiagramModel from a flow. The overlay may be nil.
// Action names must be unique, which flow validation guarantees.
func Build(flow *schema.Flow, overlay Overlay) (*DiagramModel, error) {
	if flow == nil {
		return nil, fmt.Errorf("diagram: flow is nil")
	}

	b := &builder{overlay: overlay, seen: make(map[*schema.Action]bool)}
	trigger := &Node{
		ID:    startID,
		Label: flow.Trigger.Name,
		Kind:  NodeKindTrigger,
		Path:  "/" + flow.Trigger.Name,
	}
	trigger.Status = overlay[trigger.Path]

	chain, edges, err := b.chain(flow.Trigger.NextAction, "")
	if err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(chain)+2)
	nodes = append(nodes, trigger)
	nodes = append(nodes, chain...)
	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})

	all := []Edge{{From: startID, To: firstID(chain, endID)}}
	all = append(all, edges...)
	if len(chain) > 0 {
		all = append(all, Edge{From: chain[len(chain)-1].ID, To: endID})
	}

	title := flow.DisplayName
	if title == "" {
		title = flow.Trigger.DisplayName
	}
	return &DiagramModel{Title: title, Nodes: nodes, Edges: all}, nil
}

type builder struct {
	overlay Overlay
	seen    map[*schema.Action]bool
}

// chain builds the nodes of one action chain and the edges linking them.
func (b *builder) chain(first *schema.Action, scope string) ([]*Node, []Edge, error) {
	var nodes []*Node
	var edges []Edge
	for a := first; a != nil; a = a.NextAction {
		if b.seen[a] {
			return nil, nil, fmt.Errorf("diagram: action %q is reachable twice", a.Name)
		}
		b.seen[a] = true

		node, err := b.node(a, scope)
		if err != nil {
			return nil, nil, err
		}
		if len(nodes) > 0 {
			edges = append(edges, Edge{From: nodes[len(nodes)-1].ID, To: node.ID})
		}
		nodes = append(nodes, node)
	}
	return nodes, edges, nil
}

func (b *builder) node(a *schema.Action, scope string) (*Node, error) {
	path := scope + "/" + a.Name
	node := &Node{
		ID:    nodeID(a.Name),
		Label: nodeLabel(a),
		Kind:  actionKind(a.Type),
		Path:  path,
	}
	node.Status = b.overlay[path]

	for _, sub := range []struct {
		label string
		first *schema.Action
	}{
		{"body", a.FirstLoopAction},
		{"onSuccess", a.OnSuccessAction},
		{"onFailure", a.OnFailureAction},
	} {
		if sub.first == nil {
			continue
		}
		nodes, edges, err := b.chain(sub.first, path)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, &SubGraph{Label: sub.label, Nodes: nodes, Edges: edges})
	}
	return node, nil
}

// nodeID prefixes action names so they never collide with renderer keywords
// or the virtual start and end nodes.
func nodeID(name string) string {
	return "a_" + name
}

func firstID(nodes []*Node, fallback string) string {
	if len(nodes) == 0 {
		return fallback
	}
	return nodes[0].ID
}

func actionKind(t schema.ActionType) NodeKind {
	switch t {
	case schema.ActionTypeLoop:
		return NodeKindLoop
	case schema.ActionTypeStorage:
		return NodeKindStorage
	case schema.ActionTypeBranch:
		return NodeKindBranch
	case schema.ActionTypeCode:
		return NodeKindCode
	default:
		return NodeKindPiece
	}
}

// nodeLabel creates a human-readable label for a node.
func nodeLabel(a *schema.Action) string {
	name := a.Name
	if a.DisplayName != "" {
		name = a.DisplayName
	}
	if a.Type == schema.ActionTypePiece {
		piece, _ := a.Settings["pieceName"].(string)
		action, _ := a.Settings["actionName"].(string)
		if piece != "" && action != "" {
			return fmt.Sprintf("%s\n(%s.%s)", name, piece, action)
		}
	}
	return name
}

// OverlayFromSteps builds an overlay from an in-memory step record. Loop
// bodies take the outcome of their last recorded iteration.
func OverlayFromSteps(steps *schema.StepRecord) Overlay {
	overlay := make(Overlay)
	addSteps(overlay, "", steps)
	return overlay
}

func addSteps(overlay Overlay, scope string, steps *schema.StepRecord) {
	if steps == nil {
		return
	}
	for _, name := range steps.Names() {
		out, _ := steps.Get(name)
		path := scope + "/" + name
		overlay[path] = &StatusOverlay{Status: out.Status, DurationMs: out.DurationMs, Error: out.ErrorMessage}
		if loop, ok := out.Output.(*schema.LoopOutput); ok {
			for _, iter := range loop.Iterations {
				addSteps(overlay, path, iter)
			}
		}
	}
}

// OverlayFromEvents builds an overlay from a run's step journal. Events are
// applied in order, so the last iteration of a loop body wins.
func OverlayFromEvents(events []*store.StepEvent) Overlay {
	overlay := make(Overlay)
	for _, ev := range events {
		overlay[indexFree(store.StepPath(ev.Scope, ev.Step))] = &StatusOverlay{
			Status:     ev.Status,
			DurationMs: ev.DurationMs,
			Error:      ev.ErrorCode,
		}
	}
	return overlay
}

// indexFree drops iteration indices: "/loop[2]/echo" becomes "/loop/echo".
func indexFree(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if j := strings.IndexByte(s, '['); j >= 0 {
			segments[i] = s[:j]
		}
	}
	return strings.Join(segments, "/")
}
