package history

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// An append-only record of the operations issued during a test run.
//
// Operations can safely be appended from several goroutines, e.g. one per client session.
// When the workload has finished the store is frozen and the History is created.
// After the store is frozen it no longer accepts operations.
type Store struct {
	sync.Mutex

	initial map[string]string
	ops     []Operation
	// The last sequence number used by each transaction
	lastSeq map[TxnId]int
	frozen  bool
}

// Create a new Store.
//
// initial is the state of the store under test before the workload started.
func NewStore(initial map[string]string) *Store {
	return &Store{
		initial: maps.Clone(initial),
		ops:     make([]Operation, 0),
		lastSeq: make(map[TxnId]int),
	}
}

// Append an operation to the store.
//
// If the sequence number of the operation is zero it is assigned the next sequence number of its transaction.
// Returns ErrFrozen if the store has been frozen.
func (s *Store) Append(op Operation) error {
	s.Lock()
	defer s.Unlock()
	if s.frozen {
		return ErrFrozen
	}
	if op.Seq == 0 {
		op.Seq = s.lastSeq[op.Txn] + 1
	}
	if op.Seq > s.lastSeq[op.Txn] {
		s.lastSeq[op.Txn] = op.Seq
	}
	s.ops = append(s.ops, op)
	return nil
}

// The number of operations appended so far
func (s *Store) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.ops)
}

// A copy of the operations appended so far in the order they were appended
func (s *Store) Operations() []Operation {
	s.Lock()
	defer s.Unlock()
	return slices.Clone(s.ops)
}

// Freeze the store and create the History.
//
// The store is frozen even if the recorded operations do not form a valid history.
// Returns a MalformedHistoryError if the recorded operations do not form well-formed transactions.
func (s *Store) Freeze() (History, error) {
	s.Lock()
	s.frozen = true
	ops := slices.Clone(s.ops)
	s.Unlock()
	return New(ops, s.initial)
}
