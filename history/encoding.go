package history

import (
	"encoding/json"
	"fmt"
	"io"
)

type jsonHistory struct {
	Initial      map[string]string  `json:"initial,omitempty"`
	VersionOrder map[string][]TxnId `json:"versionOrder,omitempty"`
	Transactions []jsonTransaction  `json:"transactions"`
}

type jsonTransaction struct {
	Id  TxnId           `json:"id"`
	Ops []jsonOperation `json:"ops"`
}

type jsonOperation struct {
	Kind  string `json:"kind"`
	Seq   int    `json:"seq,omitempty"`
	Start int64  `json:"start,omitempty"`
	End   int64  `json:"end,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// Read a history from its JSON representation.
//
// The operations of every transaction are validated in the same way as New.
func Decode(r io.Reader) (History, error) {
	var jh jsonHistory
	if err := json.NewDecoder(r).Decode(&jh); err != nil {
		return History{}, fmt.Errorf("history: unable to decode history: %w", err)
	}
	ops := []Operation{}
	for _, txn := range jh.Transactions {
		for _, jop := range txn.Ops {
			kind, err := ParseOpKind(jop.Kind)
			if err != nil {
				return History{}, err
			}
			ops = append(ops, Operation{
				Kind:  kind,
				Txn:   txn.Id,
				Seq:   jop.Seq,
				Start: jop.Start,
				End:   jop.End,
				Key:   jop.Key,
				Value: jop.Value,
			})
		}
	}
	h, err := New(ops, jh.Initial)
	if err != nil {
		return History{}, err
	}
	if len(jh.VersionOrder) > 0 {
		return h.WithVersionOrder(jh.VersionOrder)
	}
	return h, nil
}

// Write the JSON representation of the history to w
func Encode(w io.Writer, h History) error {
	jh := jsonHistory{
		Initial:      h.Initial,
		VersionOrder: h.VersionOrder,
		Transactions: make([]jsonTransaction, 0, len(h.Transactions)),
	}
	for _, txn := range h.Transactions {
		jt := jsonTransaction{Id: txn.Id, Ops: make([]jsonOperation, 0, len(txn.Ops))}
		for _, op := range txn.Ops {
			jt.Ops = append(jt.Ops, jsonOperation{
				Kind:  op.Kind.String(),
				Seq:   op.Seq,
				Start: op.Start,
				End:   op.End,
				Key:   op.Key,
				Value: op.Value,
			})
		}
		jh.Transactions = append(jh.Transactions, jt)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jh)
}
