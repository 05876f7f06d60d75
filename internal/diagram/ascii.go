package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/stepflow/pkg/schema"
)

// statusTag returns a short ASCII indicator for a step status.
func statusTag(status schema.StepStatus) string {
	switch status {
	case schema.StepStatusSucceeded:
		return "[OK]"
	case schema.StepStatusFailed:
		return "[FAIL]"
	case schema.StepStatusRunning:
		return "[RUN]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a vertical chain of boxes. Nested
// chains of loops and branches are listed after the main chain.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	// Title.
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, node := range model.Nodes {
		for _, line := range makeBox(node).lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if i < len(model.Nodes)-1 {
			renderConnector(&b)
		}
	}

	for _, node := range model.Nodes {
		renderChildren(&b, node, "")
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := strings.Split(node.Label, "\n")

	if node.Status != nil {
		if tag := statusTag(node.Status.Status); tag != "" {
			contentLines = append(contentLines, tag)
		}
		if node.Status.DurationMs > 0 {
			contentLines = append(contentLines, fmt.Sprintf("%dms", node.Status.DurationMs))
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := make([]string, 0, len(contentLines)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderConnector draws a vertical connector between two boxes.
func renderConnector(b *strings.Builder) {
	b.WriteString("  │\n")
	b.WriteString("  ▼\n")
}

// renderChildren lists the nested chains of node, recursing into their own
// loops and branches.
func renderChildren(b *strings.Builder, node *Node, indent string) {
	for _, sg := range node.Children {
		fmt.Fprintf(b, "\n%s--- %s %s ---\n", indent, firstLine(node.Label), sg.Label)
		for i, sub := range sg.Nodes {
			arrow := "  "
			if i > 0 {
				arrow = "→ "
			}
			tag := ""
			if sub.Status != nil {
				tag = " " + statusTag(sub.Status.Status)
			}
			fmt.Fprintf(b, "%s  %s%s%s\n", indent, arrow, firstLine(sub.Label), tag)
		}
		for _, sub := range sg.Nodes {
			renderChildren(b, sub, indent+"  ")
		}
	}
}
