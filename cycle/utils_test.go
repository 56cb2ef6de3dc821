package cycle

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
	return txnWithEnd(id, start, end, history.Commit, ops...)
}

func aborted(id history.TxnId, start, end int64, ops ...history.Operation) []history.Operation {
	return txnWithEnd(id, start, end, history.Abort, ops...)
}

func txnWithEnd(id history.TxnId, start, end int64, kind history.OpKind, ops ...history.Operation) []history.Operation {
	out := []history.Operation{{Kind: history.Begin, Txn: id, Start: start, End: start}}
	for _, op := range ops {
		op.Txn = id
		out = append(out, op)
	}
	return append(out, history.Operation{Kind: kind, Txn: id, Start: end, End: end})
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

// Create a history of transactions executed one after another against a single-copy store.
//
// Roughly one in ten transactions aborts.
func serialHistory(seed int64, numTxns int, numKeys int) history.History {
	rnd := rand.New(rand.NewSource(seed))
	initial := map[string]string{}
	state := map[string]string{}
	for k := 0; k < numKeys; k++ {
		key := fmt.Sprintf("k%d", k)
		initial[key] = "init"
		state[key] = "init"
	}

	ops := []history.Operation{}
	clock := int64(0)
	tick := func() int64 {
		clock++
		return clock
	}
	for i := 1; i <= numTxns; i++ {
		id := history.TxnId(i)
		t := tick()
		ops = append(ops, history.Operation{Kind: history.Begin, Txn: id, Start: t, End: t})
		local := map[string]string{}
		for j := 0; j < 1+rnd.Intn(4); j++ {
			key := fmt.Sprintf("k%d", rnd.Intn(numKeys))
			t := tick()
			if rnd.Intn(2) == 0 {
				val, ok := local[key]
				if !ok {
					val = state[key]
				}
				ops = append(ops, history.Operation{Kind: history.Read, Txn: id, Key: key, Value: val, Start: t, End: t})
			} else {
				val := fmt.Sprintf("%d-%d", i, j)
				local[key] = val
				ops = append(ops, history.Operation{Kind: history.Write, Txn: id, Key: key, Value: val, Start: t, End: t})
			}
		}
		t = tick()
		if rnd.Intn(10) == 0 {
			ops = append(ops, history.Operation{Kind: history.Abort, Txn: id, Start: t, End: t})
			continue
		}
		for key, val := range local {
			state[key] = val
		}
		ops = append(ops, history.Operation{Kind: history.Commit, Txn: id, Start: t, End: t})
	}
	h, err := history.New(ops, initial)
	if err != nil {
		panic(err)
	}
	return h
}
