package history

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// A transaction is the ordered sequence of operations bounded by a Begin and a terminal Commit or Abort
type Transaction struct {
	Id  TxnId
	Ops []Operation
}

func (t Transaction) BeginOp() Operation {
	return t.Ops[0]
}

// The terminal operation of the transaction
func (t Transaction) EndOp() Operation {
	return t.Ops[len(t.Ops)-1]
}

func (t Transaction) Committed() bool {
	return len(t.Ops) > 0 && t.EndOp().Kind == Commit
}

func (t Transaction) Aborted() bool {
	return len(t.Ops) > 0 && t.EndOp().Kind == Abort
}

// All reads of the transaction in sequence order
func (t Transaction) Reads() []Operation {
	return t.filter(Read)
}

// All writes of the transaction in sequence order
func (t Transaction) Writes() []Operation {
	return t.filter(Write)
}

func (t Transaction) filter(kind OpKind) []Operation {
	out := []Operation{}
	for _, op := range t.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// The last write of every key written by the transaction.
//
// Only these writes are visible to other transactions.
func (t Transaction) FinalWrites() map[string]Operation {
	out := map[string]Operation{}
	for _, op := range t.Ops {
		if op.Kind == Write {
			out[op.Key] = op
		}
	}
	return out
}

func (t Transaction) WritesKey(key string) bool {
	for _, op := range t.Ops {
		if op.Kind == Write && op.Key == key {
			return true
		}
	}
	return false
}

// A frozen record of the transactions issued during a test run.
//
// Transactions are sorted by id.
// A key that is not present in Initial has the empty string as initial value.
// VersionOrder optionally provides the install order of the committed writes of a key, as observed by some external oracle.
type History struct {
	Transactions []Transaction
	Initial      map[string]string
	VersionOrder map[string][]TxnId
}

// Create a History from a flat slice of operations.
//
// Operations are grouped by transaction and ordered by sequence number.
// Operations with a zero sequence number are numbered in the order they appear in ops.
// Returns a MalformedHistoryError if the operations do not form well-formed transactions.
func New(ops []Operation, initial map[string]string) (History, error) {
	grouped := map[TxnId][]Operation{}
	lastSeq := map[TxnId]int{}
	for _, op := range ops {
		if op.Seq == 0 {
			op.Seq = lastSeq[op.Txn] + 1
		}
		if op.Seq > lastSeq[op.Txn] {
			lastSeq[op.Txn] = op.Seq
		}
		grouped[op.Txn] = append(grouped[op.Txn], op)
	}

	ids := maps.Keys(grouped)
	slices.Sort(ids)
	h := History{
		Transactions: make([]Transaction, 0, len(ids)),
		Initial:      maps.Clone(initial),
	}
	if h.Initial == nil {
		h.Initial = map[string]string{}
	}
	for _, id := range ids {
		txnOps := grouped[id]
		slices.SortStableFunc(txnOps, func(a, b Operation) bool { return a.Seq < b.Seq })
		h.Transactions = append(h.Transactions, Transaction{Id: id, Ops: txnOps})
	}
	if err := h.Validate(); err != nil {
		return History{}, err
	}
	return h, nil
}

// Return a copy of the history using the provided version order oracle.
func (h History) WithVersionOrder(order map[string][]TxnId) (History, error) {
	out := h
	out.VersionOrder = map[string][]TxnId{}
	for key, ids := range order {
		out.VersionOrder[key] = slices.Clone(ids)
	}
	if err := out.Validate(); err != nil {
		return History{}, err
	}
	return out, nil
}

// Check the structural invariants of the history.
//
// Every transaction starts with exactly one Begin and ends with exactly one Commit or Abort, and sequence numbers are strictly increasing.
// Every transaction in the version order must be committed and write the key.
func (h History) Validate() error {
	for i, txn := range h.Transactions {
		if i > 0 && h.Transactions[i-1].Id >= txn.Id {
			return newMalformed(txn.Id, nil, "transactions are not sorted by id or the id is duplicated")
		}
		if err := validateTransaction(txn); err != nil {
			return err
		}
	}

	keys := maps.Keys(h.VersionOrder)
	slices.Sort(keys)
	for _, key := range keys {
		seen := map[TxnId]bool{}
		for _, id := range h.VersionOrder[key] {
			txn, ok := h.Transaction(id)
			if !ok {
				return newMalformed(id, nil, "version order of key %q references a transaction that is not present", key)
			}
			if !txn.Committed() {
				return newMalformed(id, nil, "version order of key %q references a transaction that did not commit", key)
			}
			if !txn.WritesKey(key) {
				return newMalformed(id, nil, "version order of key %q references a transaction that does not write it", key)
			}
			if seen[id] {
				return newMalformed(id, nil, "version order of key %q lists the transaction twice", key)
			}
			seen[id] = true
		}
	}
	return nil
}

func validateTransaction(txn Transaction) error {
	if len(txn.Ops) == 0 {
		return newMalformed(txn.Id, nil, "transaction has no operations")
	}
	first := txn.Ops[0]
	if first.Kind != Begin {
		if first.Kind.IsTerminal() {
			return newMalformed(txn.Id, &first, "%v without a matching begin", first.Kind)
		}
		return newMalformed(txn.Id, &first, "operation without a matching begin")
	}

	terminated := false
	for i, op := range txn.Ops {
		if op.Txn != txn.Id {
			return newMalformed(txn.Id, &op, "operation belongs to transaction %v", op.Txn)
		}
		if i > 0 && op.Seq <= txn.Ops[i-1].Seq {
			return newMalformed(txn.Id, &op, "duplicate sequence number %v", op.Seq)
		}
		if terminated {
			return newMalformed(txn.Id, &op, "operation after the transaction ended")
		}
		switch op.Kind {
		case Begin:
			if i > 0 {
				return newMalformed(txn.Id, &op, "duplicate begin")
			}
		case Read, Write:
			if op.Key == "" {
				return newMalformed(txn.Id, &op, "%v without a key", op.Kind)
			}
		case Commit, Abort:
			terminated = true
		default:
			return newMalformed(txn.Id, &op, "unknown operation kind")
		}
	}
	if !terminated {
		return newMalformed(txn.Id, nil, "transaction has no commit or abort")
	}
	return nil
}

// Get the transaction with the provided id
func (h History) Transaction(id TxnId) (Transaction, bool) {
	i, ok := slices.BinarySearchFunc(h.Transactions, Transaction{Id: id}, func(a, b Transaction) int {
		switch {
		case a.Id < b.Id:
			return -1
		case a.Id > b.Id:
			return 1
		}
		return 0
	})
	if ok {
		return h.Transactions[i], true
	}
	return Transaction{}, false
}

// All committed transactions sorted by id
func (h History) Committed() []Transaction {
	out := []Transaction{}
	for _, txn := range h.Transactions {
		if txn.Committed() {
			out = append(out, txn)
		}
	}
	return out
}

func (h History) InitialValue(key string) string {
	return h.Initial[key]
}

// Every key read or written in the history, sorted
func (h History) Keys() []string {
	keys := map[string]bool{}
	for _, txn := range h.Transactions {
		for _, op := range txn.Ops {
			if op.Kind == Read || op.Kind == Write {
				keys[op.Key] = true
			}
		}
	}
	out := maps.Keys(keys)
	slices.Sort(out)
	return out
}

// The total number of operations in the history
func (h History) Len() int {
	n := 0
	for _, txn := range h.Transactions {
		n += len(txn.Ops)
	}
	return n
}
