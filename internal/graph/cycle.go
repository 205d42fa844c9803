package graph

import "github.com/rendis/flowgraph/pkg/schema"

// CycleResult reports whether a subset contains a cycle. CyclePath lists the
// ids along the first cycle found and repeats the starting id at the end.
type CycleResult struct {
	HasCycle  bool     `json:"hasCycle"`
	CyclePath []string `json:"cyclePath,omitempty"`
}

// frame is one level of the explicit DFS stack. The frame stack doubles as the
// current path.
type frame struct {
	id   string
	next int // index of the next neighbor to visit
}

// DetectCycle runs an iterative depth-first search over the subset, restarting
// from every unvisited id in subset order.
func DetectCycle(edges []schema.Edge, subset []string) CycleResult {
	return DetectCycleIn(BuildAdjacency(edges, subset))
}

// DetectCycleIn is DetectCycle over a prebuilt adjacency.
func DetectCycleIn(adj Adjacency) CycleResult {
	visited := make(map[string]bool, len(adj.IDs))
	onStack := make(map[string]int, len(adj.IDs)) // id → frame index

	for _, start := range adj.IDs {
		if visited[start] {
			continue
		}
		visited[start] = true
		onStack[start] = 0
		frames := []frame{{id: start}}

		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			neighbors := adj.Forward[top.id]
			if top.next >= len(neighbors) {
				delete(onStack, top.id)
				frames = frames[:len(frames)-1]
				continue
			}
			next := neighbors[top.next]
			top.next++

			if idx, ok := onStack[next]; ok {
				return CycleResult{HasCycle: true, CyclePath: cyclePath(frames, idx)}
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			onStack[next] = len(frames)
			frames = append(frames, frame{id: next})
		}
	}
	return CycleResult{}
}

// cyclePath returns the ids of frames[from:] followed by frames[from].id.
func cyclePath(frames []frame, from int) []string {
	path := make([]string, 0, len(frames)-from+1)
	for _, f := range frames[from:] {
		path = append(path, f.id)
	}
	return append(path, frames[from].id)
}

// TopologicalSort orders the subset with Kahn's algorithm. Zero in-degree ids
// are dequeued in discovery order, starting from subset order. ok is false when
// the subset is cyclic; no partial order is returned in that case.
func TopologicalSort(edges []schema.Edge, subset []string) (order []string, ok bool) {
	return TopologicalSortIn(BuildAdjacency(edges, subset))
}

// TopologicalSortIn is TopologicalSort over a prebuilt adjacency.
func TopologicalSortIn(adj Adjacency) ([]string, bool) {
	inDegree := make(map[string]int, len(adj.IDs))
	queue := make([]string, 0, len(adj.IDs))
	for _, id := range adj.IDs {
		inDegree[id] = adj.InDegree(id)
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(adj.IDs))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, next := range adj.Forward[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(adj.IDs) {
		return nil, false
	}
	return sorted, true
}

// Levels groups a topological order into parallel execution levels: every id
// sits one level below its deepest predecessor.
func Levels(adj Adjacency, order []string) [][]string {
	if len(order) == 0 {
		return nil
	}
	depth := make(map[string]int, len(order))
	maxLevel := 0
	for _, id := range order {
		d := 0
		for _, prev := range adj.Reverse[id] {
			if depth[prev]+1 > d {
				d = depth[prev] + 1
			}
		}
		depth[id] = d
		if d > maxLevel {
			maxLevel = d
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range order {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}
