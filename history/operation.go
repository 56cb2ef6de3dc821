package history

import (
	"fmt"
	"strings"
)

// An id that identifies a transaction in the history.
type TxnId uint64

// The kind of an operation recorded in the history
type OpKind int

const (
	Begin OpKind = iota + 1
	Read
	Write
	Commit
	Abort
)

var opKindNames = map[OpKind]string{
	Begin:  "begin",
	Read:   "read",
	Write:  "write",
	Commit: "commit",
	Abort:  "abort",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Returns true if the kind ends a transaction
func (k OpKind) IsTerminal() bool {
	return k == Commit || k == Abort
}

// Parse the lower-case name of an operation kind
func ParseOpKind(s string) (OpKind, error) {
	for kind, name := range opKindNames {
		if strings.EqualFold(name, s) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("history: unknown operation kind %q", s)
}

// A single operation issued by a transaction against the store under test.
//
// Start and End are wall-clock timestamps in nanoseconds taken before the call was issued and after its response was received.
// A zero timestamp means that the time is unknown.
// They are only used to establish real-time order between transactions.
type Operation struct {
	Kind OpKind
	Txn  TxnId
	// The position of the operation in its transaction
	Seq int

	Start int64
	End   int64

	// The key read or written. Empty for Begin, Commit and Abort.
	Key string
	// For writes the value written, for reads the value observed.
	Value string
}

func (op Operation) String() string {
	switch op.Kind {
	case Read:
		return fmt.Sprintf("T%v.%v:r(%v)=%v", op.Txn, op.Seq, op.Key, op.Value)
	case Write:
		return fmt.Sprintf("T%v.%v:w(%v)=%v", op.Txn, op.Seq, op.Key, op.Value)
	default:
		return fmt.Sprintf("T%v.%v:%v", op.Txn, op.Seq, op.Kind)
	}
}

// Returns true if op happened strictly before other in real time.
// Returns false if either of the timestamps is unknown.
func (op Operation) Precedes(other Operation) bool {
	if op.End == 0 || other.Start == 0 {
		return false
	}
	return op.End < other.Start
}
