package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	inLane := make(map[string]bool)
	for _, lane := range model.Lanes {
		fmt.Fprintf(&b, "    subgraph %s[%q]\n", mermaidSafeID("lane_"+lane.ID), lane.Label)
		for _, id := range lane.NodeIDs {
			if n := model.node(id); n != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(n))
				inLane[id] = true
			}
		}
		b.WriteString("    end\n")
	}
	for _, node := range model.Nodes {
		if !inLane[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef info fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef reference stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if node.Issues != nil {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), node.Issues.Severity)
		}
		if node.Reference {
			fmt.Fprintf(&b, "    class %s reference\n", mermaidSafeID(node.ID))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape of its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)

	switch node.Kind {
	case schema.NodeTypeBegin:
		return fmt.Sprintf("%s((%q))", id, label)
	case schema.NodeTypeEnd:
		return fmt.Sprintf("%s(((%q)))", id, label)
	case schema.NodeTypeException:
		return fmt.Sprintf("%s>%q]", id, label)
	case schema.NodeTypeDecision:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.NodeTypeDecisionTable:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case schema.NodeTypeSubprocess, schema.NodeTypeConcurrent:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case schema.NodeTypeAuto:
		return fmt.Sprintf("%s([%q])", id, label)
	case schema.NodeTypeAPI:
		return fmt.Sprintf("%s[/%q/]", id, label)
	default: // process
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel drops characters Mermaid treats as syntax inside labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "'", "|", "/", "\n", " ")
	return r.Replace(s)
}
