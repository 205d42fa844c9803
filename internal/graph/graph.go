// Package graph implements the traversal primitives used by the validator and
// the concurrent-region manager. Every function takes the full edge list plus
// an id subset and only follows edges whose endpoints both lie in the subset.
package graph

import "github.com/rendis/flowgraph/pkg/schema"

// Adjacency is the forward and reverse neighbor lists of a subset.
type Adjacency struct {
	IDs     []string            // subset in caller order, duplicates removed
	Forward map[string][]string // id → targets
	Reverse map[string][]string // id → sources
}

// InDegree returns the number of distinct in-subset predecessors of id.
func (a Adjacency) InDegree(id string) int { return len(a.Reverse[id]) }

// OutDegree returns the number of distinct in-subset successors of id.
func (a Adjacency) OutDegree(id string) int { return len(a.Forward[id]) }

// Contains reports whether id is part of the subset.
func (a Adjacency) Contains(id string) bool {
	_, ok := a.Forward[id]
	return ok
}

// BuildAdjacency builds forward/reverse lists restricted to subset. Edges that
// leave the subset are dropped; parallel edges collapse to one.
func BuildAdjacency(edges []schema.Edge, subset []string) Adjacency {
	adj := Adjacency{
		IDs:     make([]string, 0, len(subset)),
		Forward: make(map[string][]string, len(subset)),
		Reverse: make(map[string][]string, len(subset)),
	}
	for _, id := range subset {
		if _, dup := adj.Forward[id]; dup {
			continue
		}
		adj.IDs = append(adj.IDs, id)
		adj.Forward[id] = nil
		adj.Reverse[id] = nil
	}

	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if !adj.Contains(e.Source) || !adj.Contains(e.Target) {
			continue
		}
		key := [2]string{e.Source, e.Target}
		if seen[key] {
			continue
		}
		seen[key] = true
		adj.Forward[e.Source] = append(adj.Forward[e.Source], e.Target)
		adj.Reverse[e.Target] = append(adj.Reverse[e.Target], e.Source)
	}
	return adj
}

// Reachable returns every subset id reachable from roots (roots included).
func Reachable(adj Adjacency, roots []string) map[string]bool {
	reached := make(map[string]bool, len(adj.IDs))
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		if adj.Contains(r) && !reached[r] {
			reached[r] = true
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj.Forward[node] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}

// EntryPoints returns the subset ids with no in-subset predecessor, in subset order.
func EntryPoints(adj Adjacency) []string {
	var roots []string
	for _, id := range adj.IDs {
		if adj.InDegree(id) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}
