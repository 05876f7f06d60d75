package diagram

import "github.com/rendis/stepflow/pkg/schema"

// NodeKind classifies a diagram node by its action type.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindPiece   NodeKind = "piece"
	NodeKindLoop    NodeKind = "loop"
	NodeKindStorage NodeKind = "storage"
	NodeKindBranch  NodeKind = "branch"
	NodeKindCode    NodeKind = "code"
	NodeKindEnd     NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node represents a single action in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Path     string // scoped path without iteration indices, e.g. "/loop/echo"
	Status   *StatusOverlay
	Children []*SubGraph // loop body, branch chains
}

// SubGraph holds a nested chain owned by a loop or branch node.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// StatusOverlay carries the recorded outcome of a node.
type StatusOverlay struct {
	Status     schema.StepStatus
	DurationMs int64
	Error      string
}

// Edge represents the transition between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
