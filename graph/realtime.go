package graph

import (
	"cobraverifier/history"

	"golang.org/x/exp/slices"
)

// Compute the real-time order between transactions.
//
// Returns every pair of indices into txns where txns[a] committed strictly before txns[b] began,
// ordered by b and then by a.
// Transactions with unknown timestamps are not ordered.
func realTimeOrder(txns []history.Transaction) [][2]int {
	known := []int{}
	for i, txn := range txns {
		if txn.BeginOp().Start != 0 && txn.EndOp().End != 0 {
			known = append(known, i)
		}
	}

	byEnd := slices.Clone(known)
	slices.SortFunc(byEnd, func(a, b int) bool {
		ea, eb := txns[a].EndOp().End, txns[b].EndOp().End
		if ea != eb {
			return ea < eb
		}
		return a < b
	})
	ends := make([]int64, len(byEnd))
	for i, idx := range byEnd {
		ends[i] = txns[idx].EndOp().End
	}

	out := [][2]int{}
	for _, b := range known {
		// The transactions that ended strictly before b began
		n, _ := slices.BinarySearch(ends, txns[b].BeginOp().Start)
		preds := slices.Clone(byEnd[:n])
		slices.Sort(preds)
		for _, a := range preds {
			if a != b {
				out = append(out, [2]int{a, b})
			}
		}
	}
	return out
}
