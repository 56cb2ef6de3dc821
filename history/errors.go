package history

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedHistory = errors.New("history: malformed history")
	ErrFrozen           = errors.New("history: the store is frozen and no longer accepts operations")
)

// A structural problem in a history.
//
// A graph built over a malformed history can not be trusted, so the error is fatal to the verification run.
// Matches ErrMalformedHistory when using errors.Is.
type MalformedHistoryError struct {
	// The transaction the problem was found in
	Txn TxnId
	// The offending operation. nil if the problem is not tied to a single operation
	Op     *Operation
	Reason string
}

func newMalformed(txn TxnId, op *Operation, format string, args ...any) *MalformedHistoryError {
	if op != nil {
		cp := *op
		op = &cp
	}
	return &MalformedHistoryError{
		Txn:    txn,
		Op:     op,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Create a MalformedHistoryError for the operation.
func Malformed(op Operation, format string, args ...any) *MalformedHistoryError {
	return newMalformed(op.Txn, &op, format, args...)
}

func (e *MalformedHistoryError) Error() string {
	if e.Op != nil {
		return fmt.Sprintf("history: malformed history: transaction %v: %v (operation %v)", e.Txn, e.Reason, *e.Op)
	}
	return fmt.Sprintf("history: malformed history: transaction %v: %v", e.Txn, e.Reason)
}

func (e *MalformedHistoryError) Is(target error) bool {
	return target == ErrMalformedHistory
}
