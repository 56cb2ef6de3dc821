package cobraverifier

import (
	"fmt"
	"io"
	"log"
	"time"

	"cobraverifier/checking"
	"cobraverifier/cycle"
	"cobraverifier/graph"
	"cobraverifier/history"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Verifies that histories of transactions are serializable.
//
// A Verifier holds no state between runs and can be used concurrently.
type Verifier struct {
	realTime    bool
	maxReported int
	numWorkers  int
	logger      *log.Logger

	export []io.Writer
}

// Verify the history using a verifier configured by the provided options.
func Verify(h history.History, opts ...VerifierOption) (*checking.Verdict, error) {
	return PrepareVerifier(opts...).Verify(h)
}

// Freeze the store and verify the resulting history.
func VerifyStore(s *history.Store, opts ...VerifierOption) (*checking.Verdict, error) {
	h, err := s.Freeze()
	if err != nil {
		return nil, err
	}
	return Verify(h, opts...)
}

// Verify the history.
//
// Returns an error matching history.ErrMalformedHistory if the history is not well formed.
// A violation is not an error, it is reported in the verdict.
func (v *Verifier) Verify(h history.History) (*checking.Verdict, error) {
	start := time.Now()
	g, err := graph.Build(h, graph.Options{RealTime: v.realTime, Workers: v.numWorkers})
	if err != nil {
		return nil, err
	}
	v.logger.Printf("Verifier: Built graph with %v transactions and %v edges in %v", g.Len(), g.NumEdges(), time.Since(start))

	var violations []cycle.Violation
	if v.realTime {
		violations = cycle.DetectStrict(g)
	} else {
		violations = cycle.Detect(g)
	}
	verdict := checking.Summarize(violations, v.realTime, v.maxReported)
	v.logger.Printf("Verifier: %v with %v violations after %v", verdict.Result, len(verdict.Violations)+verdict.Truncated, time.Since(start))

	if len(v.export) > 0 && len(verdict.Violations) > 0 {
		nodes := map[history.TxnId]bool{}
		for _, violation := range verdict.Violations {
			for _, id := range violation.Txns {
				nodes[id] = true
			}
		}
		ids := maps.Keys(nodes)
		slices.Sort(ids)
		for _, w := range v.export {
			if err := g.DOT(w, ids...); err != nil {
				return verdict, fmt.Errorf("Verifier: Unable to export graph: %w", err)
			}
		}
	}
	return verdict, nil
}
