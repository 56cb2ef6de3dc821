package cycle

import (
	"fmt"
	"strings"

	"cobraverifier/graph"
	"cobraverifier/history"
)

// One edge of a cycle
type Step struct {
	From history.TxnId
	To   history.TxnId
	// The kind used to classify the step
	Kind graph.EdgeKind
	// All kinds of the edge
	Kinds graph.EdgeKind
	// The dependencies of Kind that justify the step
	Deps []graph.Dependency
}

func (s Step) String() string {
	return fmt.Sprintf("T%v -%v-> T%v", s.From, s.Kind, s.To)
}

// A serializability violation.
//
// The transactions form a cycle: every transaction must be ordered before the next, and the last before the first.
type Violation struct {
	Txns    []history.TxnId
	Steps   []Step
	Anomaly Anomaly
	// True if the cycle only exists because of real-time order.
	// The history may still be serializable, but it is not strictly serializable.
	RealTimeOnly bool
}

func (v Violation) String() string {
	parts := []string{}
	for _, s := range v.Steps {
		parts = append(parts, fmt.Sprintf("T%v -%v->", s.From, s.Kind))
	}
	parts = append(parts, fmt.Sprintf("T%v", v.Txns[0]))
	return fmt.Sprintf("%v: %v", v.Anomaly, strings.Join(parts, " "))
}

// Find the serializability violations in the graph.
//
// Every strongly connected component with more than one transaction is a violation.
// For each of them the shortest cycle is reported as the witness.
// The result is deterministic: violations are ordered by the smallest transaction of their component.
func Detect(g *graph.Graph) []Violation {
	violations, _ := detect(g)
	return violations
}

// Find the violations of strict serializability in a graph containing RT edges.
//
// Returns the violations in the conflict edges followed by the violations that only exist because of the RT edges.
// A component of the full graph that contains a conflict violation is only reported through the conflict violation.
func DetectStrict(g *graph.Graph) []Violation {
	violations, conflicting := detect(g.Filter(graph.Conflicts))
	inConflict := map[history.TxnId]bool{}
	for _, comp := range conflicting {
		for _, id := range comp {
			inConflict[id] = true
		}
	}

	for _, comp := range StronglyConnectedComponents(g) {
		if len(comp) < 2 {
			continue
		}
		covered := false
		for _, id := range comp {
			if inConflict[id] {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		if c := shortestCycle(g, comp); c != nil {
			v := newViolation(g, c)
			v.RealTimeOnly = true
			violations = append(violations, v)
		}
	}
	return violations
}

func detect(g *graph.Graph) ([]Violation, [][]history.TxnId) {
	violations := []Violation{}
	components := [][]history.TxnId{}
	for _, comp := range StronglyConnectedComponents(g) {
		if len(comp) < 2 {
			continue
		}
		components = append(components, comp)
		if c := shortestCycle(g, comp); c != nil {
			violations = append(violations, newViolation(g, c))
		}
	}
	return violations, components
}

func newViolation(g *graph.Graph, txns []history.TxnId) Violation {
	steps := make([]Step, 0, len(txns))
	for i, from := range txns {
		to := txns[(i+1)%len(txns)]
		e, _ := g.Edge(from, to)
		kind := e.Primary()
		steps = append(steps, Step{
			From:  from,
			To:    to,
			Kind:  kind,
			Kinds: e.Kinds,
			Deps:  e.DepsOf(kind),
		})
	}
	return Violation{
		Txns:    txns,
		Steps:   steps,
		Anomaly: Classify(steps),
	}
}
