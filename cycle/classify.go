package cycle

import (
	"fmt"

	"cobraverifier/graph"
)

// The class of anomaly a cycle represents.
//
// The classification is advisory. Any cycle means that the history is not serializable.
type Anomaly int

const (
	// A cycle of WW edges, i.e. writes that were installed in conflicting orders
	G0 Anomaly = iota + 1
	// A cycle of WW and WR edges, i.e. transactions observing each others effects
	G1c
	// A cycle with a single anti-dependency
	GSingle
	// Two transactions that read the same version of a key and both overwrote it
	LostUpdate
	// A cycle with two or more anti-dependencies
	G2
	// A cycle that relies on real-time order, i.e. a strict serializability violation
	GRealtime
)

var anomalyNames = map[Anomaly]string{
	G0:         "G0 (write cycle)",
	G1c:        "G1c (circular information flow)",
	GSingle:    "G-single (read skew)",
	LostUpdate: "lost update",
	G2:         "G2 (write skew)",
	GRealtime:  "G-realtime (strict serializability violation)",
}

func (a Anomaly) String() string {
	if name, ok := anomalyNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Anomaly(%d)", int(a))
}

// Classify a cycle by the kinds of its steps
func Classify(steps []Step) Anomaly {
	count := map[graph.EdgeKind]int{}
	for _, s := range steps {
		count[s.Kind]++
	}
	switch {
	case count[graph.RT] > 0:
		return GRealtime
	case count[graph.RW] == 0 && count[graph.WR] == 0:
		return G0
	case count[graph.RW] == 0:
		return G1c
	case count[graph.RW] == 1:
		return GSingle
	case len(steps) == 2 && sharedKey(steps[0], steps[1]):
		return LostUpdate
	default:
		return G2
	}
}

// Returns true if both steps are anti-dependencies on a common key
func sharedKey(a, b Step) bool {
	if a.Kind != graph.RW || b.Kind != graph.RW {
		return false
	}
	keys := map[string]bool{}
	for _, dep := range a.Deps {
		keys[dep.Key] = true
	}
	for _, dep := range b.Deps {
		if keys[dep.Key] {
			return true
		}
	}
	return false
}
