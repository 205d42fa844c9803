package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

// issueTag returns a short ASCII indicator for an overlay severity.
func issueTag(sev schema.ValidationSeverity) string {
	switch sev {
	case schema.SeverityError:
		return "[ERR]"
	case schema.SeverityWarning:
		return "[WARN]"
	case schema.SeverityInfo:
		return "[INFO]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters, followed by the
// edge list since levels alone cannot show branches and back edges.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			if node := model.node(nodeID); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}

		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\n--- edges ---\n")
		for _, edge := range model.Edges {
			label := ""
			if edge.Label != "" {
				label = " [" + edge.Label + "]"
			}
			fmt.Fprintf(&b, "  %s ─→ %s%s\n", edge.From, edge.To, label)
		}
	}

	for _, lane := range model.Lanes {
		fmt.Fprintf(&b, "\n--- lane %s ---\n  %s\n", lane.Label, strings.Join(lane.NodeIDs, ", "))
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
	label := node.Label
	if node.Reference {
		label = "&" + label
	}
	contentLines := []string{label, "<" + string(node.Kind) + ">"}

	if node.Issues != nil {
		if tag := issueTag(node.Issues.Severity); tag != "" {
			contentLines = append(contentLines, tag)
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len([]rune(line)))
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

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := range maxHeight {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
