package cycle

import (
	"cobraverifier/graph"
	"cobraverifier/history"
)

// Find the shortest cycle within a strongly connected component.
//
// A breadth first search is started from every member, restricted to the component and to members with a larger id.
// Every cycle is therefore found from its smallest member and is returned starting at it.
// Successors are visited in ascending order, so the first cycle found for a start node is the lexicographically smallest of its length.
// Ties between start nodes are broken in favour of the smaller start node.
// The search from a node stops expanding once it can not find a cycle shorter than the best one found so far.
//
// Returns nil if the component contains no cycle.
func shortestCycle(g *graph.Graph, component []history.TxnId) []history.TxnId {
	members := map[history.TxnId]bool{}
	for _, id := range component {
		members[id] = true
	}

	var best []history.TxnId
	for _, start := range component {
		if best != nil && len(best) <= 2 {
			break
		}
		// Paths of at most maxDepth edges can still close a cycle shorter than best
		maxDepth := len(component)
		if best != nil {
			maxDepth = len(best) - 2
		}
		if c := cycleFrom(g, members, start, maxDepth); c != nil {
			if best == nil || len(c) < len(best) {
				best = c
			}
		}
	}
	return best
}

// Breadth first search for the shortest cycle through start using only members with an id larger than start.
func cycleFrom(g *graph.Graph, members map[history.TxnId]bool, start history.TxnId, maxDepth int) []history.TxnId {
	parent := map[history.TxnId]history.TxnId{}
	depth := map[history.TxnId]int{start: 0}
	queue := []history.TxnId{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if _, ok := g.Edge(u, start); ok {
			path := []history.TxnId{u}
			for cur := u; cur != start; {
				cur = parent[cur]
				path = append(path, cur)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		if depth[u] >= maxDepth {
			continue
		}
		for _, v := range g.Successors(u) {
			if v <= start || !members[v] {
				continue
			}
			if _, seen := depth[v]; seen {
				continue
			}
			depth[v] = depth[u] + 1
			parent[v] = u
			queue = append(queue, v)
		}
	}
	return nil
}
