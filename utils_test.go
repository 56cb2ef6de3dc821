package cobraverifier

import (
	"fmt"
	"math/rand"
	"testing"

	"cobraverifier/history"
)

func r(key, value string) history.Operation {
	return history.Operation{Kind: history.Read, Key: key, Value: value}
}

func w(key, value string) history.Operation {
	return history.Operation{Kind: history.Write, Key: key, Value: value}
}

// Create the operations of a committed transaction. start and end are the begin and commit timestamps, 0 if unknown.
func txn(id history.TxnId, start, end int64, ops ...history.Operation) []history.Operation {
	out := []history.Operation{{Kind: history.Begin, Txn: id, Start: start, End: start}}
	for _, op := range ops {
		op.Txn = id
		out = append(out, op)
	}
	return append(out, history.Operation{Kind: history.Commit, Txn: id, Start: end, End: end})
}

func mustHistory(t *testing.T, initial map[string]string, txns ...[]history.Operation) history.History {
	t.Helper()
	ops := []history.Operation{}
	for _, txn := range txns {
		ops = append(ops, txn...)
	}
	h, err := history.New(ops, initial)
	if err != nil {
		t.Fatalf("Unable to create history: %v", err)
	}
	return h
}

// Execute random transactions one after another against a single-copy store and record them.
func serialStore(seed int64, numTxns int, numKeys int) *history.Store {
	rnd := rand.New(rand.NewSource(seed))
	state := map[string]string{}
	for k := 0; k < numKeys; k++ {
		state[fmt.Sprintf("k%d", k)] = "init"
	}
	store := history.NewStore(state)

	clock := int64(0)
	record := func(op history.Operation) {
		clock++
		op.Start, op.End = clock, clock
		if err := store.Append(op); err != nil {
			panic(err)
		}
	}
	for i := 1; i <= numTxns; i++ {
		id := history.TxnId(i)
		record(history.Operation{Kind: history.Begin, Txn: id})
		local := map[string]string{}
		for j := 0; j < 1+rnd.Intn(4); j++ {
			key := fmt.Sprintf("k%d", rnd.Intn(numKeys))
			if rnd.Intn(2) == 0 {
				val, ok := local[key]
				if !ok {
					val = state[key]
				}
				record(history.Operation{Kind: history.Read, Txn: id, Key: key, Value: val})
			} else {
				val := fmt.Sprintf("%d-%d", i, j)
				local[key] = val
				record(history.Operation{Kind: history.Write, Txn: id, Key: key, Value: val})
			}
		}
		for key, val := range local {
			state[key] = val
		}
		record(history.Operation{Kind: history.Commit, Txn: id})
	}
	return store
}
