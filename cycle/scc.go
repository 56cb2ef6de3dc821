package cycle

import (
	"cobraverifier/graph"
	"cobraverifier/history"

	"golang.org/x/exp/slices"
)

type frame struct {
	id history.TxnId
	// The index of the next successor to visit
	next int
}

// Find the strongly connected components of the graph using Tarjan's algorithm.
//
// The search uses an explicit stack so that long dependency chains do not grow the goroutine stack.
// Every component is sorted, and the components are sorted by their smallest member.
// Runs in O(V+E).
func StronglyConnectedComponents(g *graph.Graph) [][]history.TxnId {
	index := map[history.TxnId]int{}
	low := map[history.TxnId]int{}
	onStack := map[history.TxnId]bool{}
	stack := []history.TxnId{}
	counter := 0
	out := [][]history.TxnId{}

	visit := func(id history.TxnId) {
		index[id] = counter
		low[id] = counter
		counter++
		stack = append(stack, id)
		onStack[id] = true
	}

	for _, root := range g.Nodes() {
		if _, ok := index[root]; ok {
			continue
		}
		visit(root)
		calls := []frame{{id: root}}
		for len(calls) > 0 {
			top := &calls[len(calls)-1]
			succ := g.Successors(top.id)
			if top.next < len(succ) {
				v := succ[top.next]
				top.next++
				if _, ok := index[v]; !ok {
					visit(v)
					calls = append(calls, frame{id: v})
				} else if onStack[v] && index[v] < low[top.id] {
					low[top.id] = index[v]
				}
				continue
			}

			// All successors have been visited
			u := top.id
			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].id
				if low[u] < low[parent] {
					low[parent] = low[u]
				}
			}
			if low[u] != index[u] {
				continue
			}
			comp := []history.TxnId{}
			for {
				v := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[v] = false
				comp = append(comp, v)
				if v == u {
					break
				}
			}
			slices.Sort(comp)
			out = append(out, comp)
		}
	}
	slices.SortFunc(out, func(a, b []history.TxnId) bool { return a[0] < b[0] })
	return out
}
