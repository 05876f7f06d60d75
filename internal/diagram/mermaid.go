package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/stepflow/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	writeMermaidNodes(&b, model.Nodes, "    ")
	writeMermaidEdges(&b, model.Edges, "    ")

	// Status class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef succeeded fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")

	writeMermaidClasses(&b, model.Nodes)

	return b.String()
}

// writeMermaidNodes writes node definitions, nesting each child chain in a
// subgraph below its owner.
func writeMermaidNodes(b *strings.Builder, nodes []*Node, indent string) {
	for _, node := range nodes {
		fmt.Fprintf(b, "%s%s\n", indent, mermaidNodeDef(node))
		for _, sg := range node.Children {
			fmt.Fprintf(b, "%ssubgraph %s[\"%s: %s\"]\n",
				indent, mermaidSafeID(node.ID+"_"+sg.Label), mermaidEscapeLabel(node.Label), sg.Label)
			writeMermaidNodes(b, sg.Nodes, indent+"    ")
			writeMermaidEdges(b, sg.Edges, indent+"    ")
			fmt.Fprintf(b, "%send\n", indent)
			if len(sg.Nodes) > 0 {
				fmt.Fprintf(b, "%s%s -.->|%s| %s\n",
					indent, mermaidSafeID(node.ID), sg.Label, mermaidSafeID(sg.Nodes[0].ID))
			}
		}
	}
}

func writeMermaidEdges(b *strings.Builder, edges []Edge, indent string) {
	for _, edge := range edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(b, "%s%s -->%s %s\n",
			indent, mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}
}

func writeMermaidClasses(b *strings.Builder, nodes []*Node) {
	for _, node := range nodes {
		if node.Status != nil {
			if cls := mermaidStatusClass(node.Status.Status); cls != "" {
				fmt.Fprintf(b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
			}
		}
		for _, sg := range node.Children {
			writeMermaidClasses(b, sg.Nodes)
		}
	}
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case NodeKindBranch:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindCode:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindStorage:
		return fmt.Sprintf("%s[(%q)]", id, label)
	case NodeKindLoop:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindTrigger, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // piece
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", "[", "_", "]", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces double quotes, which end a quoted label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

// mermaidStatusClass maps a step status to a Mermaid class name.
func mermaidStatusClass(status schema.StepStatus) string {
	switch status {
	case schema.StepStatusSucceeded:
		return "succeeded"
	case schema.StepStatusFailed:
		return "failed"
	case schema.StepStatusRunning:
		return "running"
	default:
		return ""
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
