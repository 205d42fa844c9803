package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/flowgraph/pkg/schema"
)

// ImageFormat is an output format supported by RenderImage.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

// ParseImageFormat accepts png, svg and dot.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch f := ImageFormat(s); f {
	case FormatPNG, FormatSVG, FormatDOT:
		return f, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", s)
	}
}

// RenderImage lays out a DiagramModel with graphviz dot and returns the
// rendered bytes in the requested format.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat, err := graphvizFormat(format)
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer g.Close()

	g.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	// Lane members are created inside their cluster so dot groups them.
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, lane := range model.Lanes {
		sub, subErr := g.CreateSubGraphByName("cluster_" + lane.ID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create lane %s: %w", lane.ID, subErr)
		}
		sub.SetLabel(lane.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range lane.NodeIDs {
			node := model.node(id)
			if node == nil || gvNodes[id] != nil {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(id)
			if nErr != nil {
				return nil, fmt.Errorf("diagram: create node %s: %w", id, nErr)
			}
			styleNode(gvNode, node)
			gvNodes[id] = gvNode
		}
	}
	for _, node := range model.Nodes {
		if gvNodes[node.ID] != nil {
			continue
		}
		gvNode, nErr := g.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		styleNode(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		from, to := gvNodes[edge.From], gvNodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, eErr := g.CreateEdgeByName("", from, to)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func graphvizFormat(f ImageFormat) (graphviz.Format, error) {
	switch f {
	case FormatPNG:
		return graphviz.PNG, nil
	case FormatSVG:
		return graphviz.SVG, nil
	case FormatDOT:
		return graphviz.XDOT, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", f)
	}
}

// styleNode sets label, shape and overlay colors.
func styleNode(gvNode *cgraph.Node, node *Node) {
	gvNode.SetLabel(node.Label)

	switch node.Kind {
	case schema.NodeTypeBegin:
		gvNode.SetShape(cgraph.CircleShape)
	case schema.NodeTypeEnd:
		gvNode.SetShape(cgraph.DoubleCircleShape)
	case schema.NodeTypeException:
		gvNode.SetShape(cgraph.OctagonShape)
	case schema.NodeTypeDecision:
		gvNode.SetShape(cgraph.DiamondShape)
	case schema.NodeTypeDecisionTable:
		gvNode.SetShape(cgraph.TabShape)
	case schema.NodeTypeSubprocess:
		gvNode.SetShape(cgraph.Box3DShape)
	case schema.NodeTypeConcurrent:
		gvNode.SetShape(cgraph.MsquareShape)
	case schema.NodeTypeAuto:
		gvNode.SetShape(cgraph.ComponentShape)
	case schema.NodeTypeAPI:
		gvNode.SetShape(cgraph.ParallelogramShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Reference {
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
	if node.Issues == nil {
		return
	}
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch node.Issues.Severity {
	case schema.SeverityError:
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case schema.SeverityWarning:
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	}
}
