// Package concurrent manages parallel-branch regions: the set of nodes
// enclosed by a Concurrent construct and the branches that partition them.
package concurrent

import (
	"fmt"
	"strings"

	"github.com/rendis/flowgraph/internal/graph"
	"github.com/rendis/flowgraph/pkg/schema"
)

// NodeLookup resolves node ids. *model.WorkflowModel satisfies it.
type NodeLookup interface {
	Node(id string) (schema.Node, bool)
}

// ValidateRegion is the structural soundness check of a region. Findings
// accumulate in this order:
//  1. illegal members (Begin, End, Exception), one error each
//  2. a cycle among the members, one error naming the chain
//  3. members with no in-region edges at all (only for regions of more than
//     one member), one warning each
//  4. members not reachable from the region's entry points and not already
//     reported as disconnected, one warning each
//
// IsValid reflects errors only.
func ValidateRegion(containedIDs []string, edges []schema.Edge, nodes NodeLookup) schema.ConcurrentValidationResult {
	res := schema.ConcurrentValidationResult{Errors: []string{}}

	for _, id := range containedIDs {
		n, ok := lookup(nodes, id)
		if !ok || !schema.IsIllegalInConcurrent(n.Type()) {
			continue
		}
		res.InvalidNodes = append(res.InvalidNodes, id)
		res.Errors = append(res.Errors, fmt.Sprintf("%s node %q cannot be part of a concurrent region",
			schema.TypeLabel(n.Type()), schema.DisplayName(n)))
	}

	adj := graph.BuildAdjacency(edges, containedIDs)

	if cyc := graph.DetectCycleIn(adj); cyc.HasCycle {
		res.HasCycle = true
		res.CyclePath = cyc.CyclePath
		res.Errors = append(res.Errors, "concurrent region contains a cycle: "+DescribePath(cyc.CyclePath, nodes))
	}

	disconnected := make(map[string]bool)
	if len(adj.IDs) > 1 {
		for _, id := range adj.IDs {
			if adj.InDegree(id) == 0 && adj.OutDegree(id) == 0 {
				disconnected[id] = true
				res.DisconnectedNodes = append(res.DisconnectedNodes, id)
				res.Warnings = append(res.Warnings, fmt.Sprintf("node %q is disconnected from the rest of the region", label(nodes, id)))
			}
		}
	}

	if entries := graph.EntryPoints(adj); len(entries) > 0 {
		reached := graph.Reachable(adj, entries)
		for _, id := range adj.IDs {
			if reached[id] || disconnected[id] {
				continue
			}
			res.UnreachableNodes = append(res.UnreachableNodes, id)
			res.Warnings = append(res.Warnings, fmt.Sprintf("node %q is unreachable from the region entry points", label(nodes, id)))
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// DescribePath renders a cycle path as a chain of node names, falling back to
// the raw id for nodes that are unknown or unnamed.
func DescribePath(path []string, nodes NodeLookup) string {
	names := make([]string, len(path))
	for i, id := range path {
		names[i] = label(nodes, id)
	}
	return strings.Join(names, " → ")
}

func label(nodes NodeLookup, id string) string {
	if n, ok := lookup(nodes, id); ok {
		return schema.DisplayName(n)
	}
	return id
}

func lookup(nodes NodeLookup, id string) (schema.Node, bool) {
	if nodes == nil {
		return nil, false
	}
	n, ok := nodes.Node(id)
	if !ok || n == nil {
		return nil, false
	}
	return n, true
}
