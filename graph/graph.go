package graph

import (
	"fmt"
	"io"
	"strings"

	"cobraverifier/history"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// The type of a dependency between two transactions.
//
// Kinds are bit flags so that the kinds of an edge can be stored as a set.
type EdgeKind uint8

const (
	// write-write: the source installed a version that the target overwrote
	WW EdgeKind = 1 << iota
	// write-read: the target read a version installed by the source
	WR
	// read-write: the source read a version that the target overwrote (anti-dependency)
	RW
	// real-time: the source committed before the target began
	RT
)

// All conflict kinds, i.e. every kind except RT
const Conflicts = WW | WR | RW

// All kinds
const AllKinds = Conflicts | RT

// The kinds in the order used when choosing the kind that represents an edge
var KindPreference = []EdgeKind{WW, WR, RW, RT}

var kindNames = map[EdgeKind]string{
	WW: "WW",
	WR: "WR",
	RW: "RW",
	RT: "RT",
}

func (k EdgeKind) String() string {
	names := []string{}
	for _, kind := range KindPreference {
		if k&kind != 0 {
			names = append(names, kindNames[kind])
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Returns true if all kinds in other are in k
func (k EdgeKind) Has(other EdgeKind) bool {
	return other != 0 && k&other == other
}

// A pair of operations that justifies a dependency.
//
// Cause is an operation of the source transaction and Effect an operation of the target transaction.
// Key is empty for RT dependencies.
type Dependency struct {
	Kind   EdgeKind
	Key    string
	Cause  history.Operation
	Effect history.Operation
}

func (d Dependency) String() string {
	return fmt.Sprintf("%v %v -> %v", kindNames[d.Kind], d.Cause, d.Effect)
}

// A directed edge between two committed transactions.
//
// Duplicate edges between the same ordered pair are collapsed into one edge.
// The edge keeps the union of their kinds and every dependency that justifies it.
type Edge struct {
	From  history.TxnId
	To    history.TxnId
	Kinds EdgeKind
	Deps  []Dependency
}

// The dependencies of the provided kind
func (e *Edge) DepsOf(kind EdgeKind) []Dependency {
	out := []Dependency{}
	for _, dep := range e.Deps {
		if kind&dep.Kind != 0 {
			out = append(out, dep)
		}
	}
	return out
}

// The kind representing the edge. WW is preferred over WR, WR over RW and RW over RT.
func (e *Edge) Primary() EdgeKind {
	for _, kind := range KindPreference {
		if e.Kinds&kind != 0 {
			return kind
		}
	}
	return 0
}

func (e *Edge) String() string {
	return fmt.Sprintf("T%v -%v-> T%v", e.From, e.Kinds, e.To)
}

// A conflict graph over the committed transactions of a history.
//
// The graph is not modified after it has been built and can be read from several goroutines.
type Graph struct {
	nodes []history.TxnId
	txns  map[history.TxnId]history.Transaction
	out   map[history.TxnId]map[history.TxnId]*Edge
	// Sorted successors, computed when the graph is sealed
	succ map[history.TxnId][]history.TxnId
}

func newGraph(txns []history.Transaction) *Graph {
	g := &Graph{
		nodes: make([]history.TxnId, 0, len(txns)),
		txns:  make(map[history.TxnId]history.Transaction, len(txns)),
		out:   make(map[history.TxnId]map[history.TxnId]*Edge),
	}
	for _, txn := range txns {
		g.nodes = append(g.nodes, txn.Id)
		g.txns[txn.Id] = txn
	}
	slices.Sort(g.nodes)
	return g
}

// Add a dependency to the edge from -> to.
//
// Dependencies between a transaction and itself are dropped.
// Dependencies identical to one already on the edge are ignored.
func (g *Graph) addDependency(from, to history.TxnId, dep Dependency) {
	if from == to {
		return
	}
	edges, ok := g.out[from]
	if !ok {
		edges = make(map[history.TxnId]*Edge)
		g.out[from] = edges
	}
	e, ok := edges[to]
	if !ok {
		e = &Edge{From: from, To: to}
		edges[to] = e
	}
	if slices.Contains(e.Deps, dep) {
		return
	}
	e.Kinds |= dep.Kind
	e.Deps = append(e.Deps, dep)
}

// Compute the sorted successor lists. Must be called when all dependencies have been added.
func (g *Graph) seal() {
	g.succ = make(map[history.TxnId][]history.TxnId, len(g.out))
	for from, edges := range g.out {
		succ := maps.Keys(edges)
		slices.Sort(succ)
		g.succ[from] = succ
	}
}

// The ids of all transactions in the graph, sorted
func (g *Graph) Nodes() []history.TxnId {
	return slices.Clone(g.nodes)
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Transaction(id history.TxnId) (history.Transaction, bool) {
	txn, ok := g.txns[id]
	return txn, ok
}

// The edge from -> to
func (g *Graph) Edge(from, to history.TxnId) (*Edge, bool) {
	e, ok := g.out[from][to]
	return e, ok
}

// The sorted ids of the targets of the edges leaving id.
//
// The returned slice must not be modified.
func (g *Graph) Successors(id history.TxnId) []history.TxnId {
	return g.succ[id]
}

// All edges sorted by source and target
func (g *Graph) Edges() []*Edge {
	out := []*Edge{}
	for _, from := range g.nodes {
		for _, to := range g.succ[from] {
			out = append(out, g.out[from][to])
		}
	}
	return out
}

func (g *Graph) NumEdges() int {
	n := 0
	for _, succ := range g.succ {
		n += len(succ)
	}
	return n
}

// Create a graph containing the same transactions but only the dependencies of the provided kinds.
//
// Edges left without dependencies are removed.
func (g *Graph) Filter(kinds EdgeKind) *Graph {
	out := &Graph{
		nodes: g.nodes,
		txns:  g.txns,
		out:   make(map[history.TxnId]map[history.TxnId]*Edge),
	}
	for _, e := range g.Edges() {
		for _, dep := range e.Deps {
			if kinds&dep.Kind != 0 {
				out.addDependency(e.From, e.To, dep)
			}
		}
	}
	out.seal()
	return out
}

// Write the graph in the Graphviz DOT format.
//
// If nodes are provided only those transactions and the edges between them are written.
func (g *Graph) DOT(w io.Writer, nodes ...history.TxnId) error {
	include := func(history.TxnId) bool { return true }
	if len(nodes) > 0 {
		include = func(id history.TxnId) bool { return slices.Contains(nodes, id) }
	}

	out := strings.Builder{}
	out.WriteString("digraph conflicts {\n")
	for _, id := range g.nodes {
		if include(id) {
			out.WriteString(fmt.Sprintf("\tT%v;\n", id))
		}
	}
	for _, e := range g.Edges() {
		if include(e.From) && include(e.To) {
			out.WriteString(fmt.Sprintf("\tT%v -> T%v [label=\"%v\"];\n", e.From, e.To, e.Kinds))
		}
	}
	out.WriteString("}\n")
	_, err := io.WriteString(w, out.String())
	return err
}
