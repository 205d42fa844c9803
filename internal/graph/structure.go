package graph

import "github.com/rendis/flowgraph/pkg/schema"

// Role classifies a subset id by its in/out degree and reachability.
type Role string

const (
	RoleStart        Role = "start"
	RoleEnd          Role = "end"
	RoleInternal     Role = "internal"
	RoleDisconnected Role = "disconnected"
	RoleUnreachable  Role = "unreachable"
)

// Structure is the classification of every id in a subset. MultiPathNodes
// (merge points with more than one predecessor) is a flag on top of the role.
type Structure struct {
	IsValid           bool            `json:"isValid"`
	Roles             map[string]Role `json:"roles"`
	StartNodes        []string        `json:"startNodes"`
	EndNodes          []string        `json:"endNodes"`
	InternalNodes     []string        `json:"internalNodes"`
	DisconnectedNodes []string        `json:"disconnectedNodes"`
	UnreachableNodes  []string        `json:"unreachableNodes"`
	MultiPathNodes    []string        `json:"multiPathNodes"`
}

// AnalyzeStructure classifies the subset. The structure is valid only when it
// has no disconnected ids, at least one start id and at least one end id.
func AnalyzeStructure(edges []schema.Edge, subset []string) Structure {
	return AnalyzeStructureIn(BuildAdjacency(edges, subset))
}

// AnalyzeStructureIn is AnalyzeStructure over a prebuilt adjacency.
func AnalyzeStructureIn(adj Adjacency) Structure {
	s := Structure{Roles: make(map[string]Role, len(adj.IDs))}
	reached := Reachable(adj, EntryPoints(adj))
	multiMember := len(adj.IDs) > 1

	for _, id := range adj.IDs {
		in, out := adj.InDegree(id), adj.OutDegree(id)

		var role Role
		switch {
		case in == 0 && out == 0 && multiMember:
			role = RoleDisconnected
			s.DisconnectedNodes = append(s.DisconnectedNodes, id)
		case !reached[id]:
			role = RoleUnreachable
			s.UnreachableNodes = append(s.UnreachableNodes, id)
		case in == 0 && out > 0:
			role = RoleStart
			s.StartNodes = append(s.StartNodes, id)
		case out == 0 && in > 0:
			role = RoleEnd
			s.EndNodes = append(s.EndNodes, id)
		default:
			role = RoleInternal
			s.InternalNodes = append(s.InternalNodes, id)
		}
		s.Roles[id] = role

		if in > 1 {
			s.MultiPathNodes = append(s.MultiPathNodes, id)
		}
	}

	s.IsValid = len(s.DisconnectedNodes) == 0 && len(s.StartNodes) > 0 && len(s.EndNodes) > 0
	return s
}
