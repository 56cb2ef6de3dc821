package graph

import (
	"runtime"
	"sync"

	"cobraverifier/history"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Configures how the conflict graph is built
type Options struct {
	// Add RT edges between transactions that are ordered in real time.
	// Required to check strict serializability.
	RealTime bool
	// The number of goroutines building the per-key edges.
	// GOMAXPROCS is used if it is not positive.
	Workers int
}

// A committed write that is visible to other transactions, i.e. the last write of the key in its transaction
type keyWrite struct {
	txn history.Transaction
	op  history.Operation
}

// A read of a key in a committed transaction that was not preceded by a write of the same key in the transaction
type keyRead struct {
	txn history.Transaction
	op  history.Operation
}

// A read that was preceded by a write of the same key in its own transaction
type internalRead struct {
	op       history.Operation
	expected string
}

// All operations on a single key
type keyIndex struct {
	key     string
	initial string

	writes   []keyWrite
	reads    []keyRead
	internal []internalRead

	// Values written by aborted transactions and overwritten writes of committed transactions.
	// Used to explain why a read can not be justified.
	aborted      map[string]history.Operation
	intermediate map[string]history.Operation

	order []history.TxnId
}

type edgeRecord struct {
	from, to history.TxnId
	dep      Dependency
}

type keyResult struct {
	edges []edgeRecord
	err   error
}

// Build the conflict graph of a history.
//
// The nodes are the committed transactions.
// WR edges connect a write with the reads that observed it.
// WW edges order the writes of a key where an order can be established:
// in real time, by a transaction reading the version it overwrites, or by the version order of the history.
// RW edges connect a read with every write of the key ordered after the version the read observed.
// RT edges are added if opts.RealTime is set.
//
// Returns a MalformedHistoryError if the history is structurally invalid
// or if a read can not be justified by the initial state or a visible committed write.
// The graph is identical regardless of the number of workers.
func Build(h history.History, opts Options) (*Graph, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	committed := h.Committed()
	g := newGraph(committed)

	indices := indexKeys(h)
	results := make([]keyResult, len(indices))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(indices) {
		workers = len(indices)
	}

	jobs := make(chan int)
	wg := new(sync.WaitGroup)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				edges, err := buildKey(indices[j])
				results[j] = keyResult{edges: edges, err: err}
			}
		}()
	}
	for j := range indices {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	// Merge in key order so that the graph does not depend on the scheduling of the workers
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		for _, e := range res.edges {
			g.addDependency(e.from, e.to, e.dep)
		}
	}

	if opts.RealTime {
		for _, pair := range realTimeOrder(committed) {
			a, b := committed[pair[0]], committed[pair[1]]
			g.addDependency(a.Id, b.Id, Dependency{
				Kind:   RT,
				Cause:  a.EndOp(),
				Effect: b.BeginOp(),
			})
		}
	}

	g.seal()
	return g, nil
}

// Index the operations of the history by key. The indices are sorted by key.
func indexKeys(h history.History) []*keyIndex {
	byKey := map[string]*keyIndex{}
	get := func(key string) *keyIndex {
		idx, ok := byKey[key]
		if !ok {
			idx = &keyIndex{
				key:          key,
				initial:      h.InitialValue(key),
				aborted:      map[string]history.Operation{},
				intermediate: map[string]history.Operation{},
				order:        h.VersionOrder[key],
			}
			byKey[key] = idx
		}
		return idx
	}

	for _, txn := range h.Transactions {
		final := txn.FinalWrites()
		// The latest value written by this transaction so far
		written := map[string]string{}
		for _, op := range txn.Ops {
			switch op.Kind {
			case history.Write:
				idx := get(op.Key)
				written[op.Key] = op.Value
				if txn.Aborted() {
					idx.aborted[op.Value] = op
				} else if final[op.Key] != op {
					idx.intermediate[op.Value] = op
				} else {
					idx.writes = append(idx.writes, keyWrite{txn: txn, op: op})
				}
			case history.Read:
				idx := get(op.Key)
				if txn.Aborted() {
					continue
				}
				if val, ok := written[op.Key]; ok {
					idx.internal = append(idx.internal, internalRead{op: op, expected: val})
				} else {
					idx.reads = append(idx.reads, keyRead{txn: txn, op: op})
				}
			}
		}
	}

	keys := maps.Keys(byKey)
	slices.Sort(keys)
	out := make([]*keyIndex, 0, len(keys))
	for _, key := range keys {
		out = append(out, byKey[key])
	}
	return out
}

// Compute the WR, WW and RW dependencies of a single key
func buildKey(idx *keyIndex) ([]edgeRecord, error) {
	edges := []edgeRecord{}

	byValue := map[string]keyWrite{}
	byTxn := map[history.TxnId]keyWrite{}
	for _, w := range idx.writes {
		if w.op.Value == idx.initial {
			return nil, history.Malformed(w.op, "write installs the initial value of key %q, reads of it are ambiguous", idx.key)
		}
		if other, ok := byValue[w.op.Value]; ok {
			return nil, history.Malformed(w.op, "transaction %v installs the same value for key %q, reads of it are ambiguous", other.txn.Id, idx.key)
		}
		byValue[w.op.Value] = w
		byTxn[w.txn.Id] = w
	}

	for _, r := range idx.internal {
		if r.op.Value != r.expected {
			return nil, history.Malformed(r.op, "read did not observe the transaction's own write %q", r.expected)
		}
	}

	// The write observed by each read. The zero value means the initial version.
	observed := make([]*keyWrite, len(idx.reads))
	for i, r := range idx.reads {
		if r.op.Value == idx.initial {
			continue
		}
		w, ok := byValue[r.op.Value]
		if !ok {
			if a, ok := idx.aborted[r.op.Value]; ok {
				return nil, history.Malformed(r.op, "read observed a write of aborted transaction %v", a.Txn)
			}
			if m, ok := idx.intermediate[r.op.Value]; ok {
				return nil, history.Malformed(r.op, "read observed an overwritten write of transaction %v", m.Txn)
			}
			return nil, history.Malformed(r.op, "read observed a value that was never written")
		}
		if w.txn.Id == r.txn.Id {
			return nil, history.Malformed(r.op, "read observed a write of its own transaction that had not happened yet")
		}
		if w.op.Start != 0 && r.op.End != 0 && w.op.Start > r.op.End {
			return nil, history.Malformed(r.op, "read observed a write of transaction %v that started after the read returned", w.txn.Id)
		}
		observed[i] = &w
		edges = append(edges, edgeRecord{w.txn.Id, r.txn.Id, Dependency{Kind: WR, Key: idx.key, Cause: w.op, Effect: r.op}})
	}

	// Known version order of the writes of the key
	after := map[history.TxnId]map[history.TxnId]bool{}
	addOrder := func(a, b keyWrite) {
		if a.txn.Id == b.txn.Id {
			return
		}
		if after[a.txn.Id] == nil {
			after[a.txn.Id] = map[history.TxnId]bool{}
		}
		after[a.txn.Id][b.txn.Id] = true
		edges = append(edges, edgeRecord{a.txn.Id, b.txn.Id, Dependency{Kind: WW, Key: idx.key, Cause: a.op, Effect: b.op}})
	}

	writers := make([]history.Transaction, len(idx.writes))
	for i, w := range idx.writes {
		writers[i] = w.txn
	}
	for _, pair := range realTimeOrder(writers) {
		addOrder(idx.writes[pair[0]], idx.writes[pair[1]])
	}
	for i, r := range idx.reads {
		if observed[i] == nil {
			continue
		}
		if own, ok := byTxn[r.txn.Id]; ok {
			addOrder(*observed[i], own)
		}
	}
	for i := 1; i < len(idx.order); i++ {
		addOrder(byTxn[idx.order[i-1]], byTxn[idx.order[i]])
	}

	// Writes that are known to be installed after each write
	reachable := map[history.TxnId][]history.TxnId{}
	successors := func(id history.TxnId) []history.TxnId {
		if out, ok := reachable[id]; ok {
			return out
		}
		seen := map[history.TxnId]bool{id: true}
		queue := []history.TxnId{id}
		out := []history.TxnId{}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			next := maps.Keys(after[cur])
			slices.Sort(next)
			for _, n := range next {
				if !seen[n] {
					seen[n] = true
					out = append(out, n)
					queue = append(queue, n)
				}
			}
		}
		slices.Sort(out)
		reachable[id] = out
		return out
	}

	// A write precedes every write installed after it, not only its direct successors
	for _, w := range idx.writes {
		for _, id := range successors(w.txn.Id) {
			edges = append(edges, edgeRecord{w.txn.Id, id, Dependency{Kind: WW, Key: idx.key, Cause: w.op, Effect: byTxn[id].op}})
		}
	}

	for i, r := range idx.reads {
		var targets []history.TxnId
		if observed[i] == nil {
			for _, w := range idx.writes {
				targets = append(targets, w.txn.Id)
			}
		} else {
			targets = successors(observed[i].txn.Id)
		}
		for _, id := range targets {
			if id == r.txn.Id {
				continue
			}
			w := byTxn[id]
			edges = append(edges, edgeRecord{r.txn.Id, id, Dependency{Kind: RW, Key: idx.key, Cause: r.op, Effect: w.op}})
		}
	}
	return edges, nil
}
