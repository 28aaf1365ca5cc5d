package scheduler

import "github.com/petervdpas/conversation-engine/internal/store"

// removeOperation drops the row with the given id from ops, preserving
// the relative order of the rest (the "remove+re-insert" rule of
// spec.md §5 applied to a single-item removal).
func removeOperation(ops []store.Operation, id int64) []store.Operation {
	out := ops[:0]
	for _, op := range ops {
		if op.Id != id {
			out = append(out, op)
		}
	}
	return out
}

// filterOutIds drops every row whose id is in ids.
func filterOutIds(ops []store.Operation, ids map[int64]bool) []store.Operation {
	if len(ids) == 0 {
		return ops
	}
	out := ops[:0]
	for _, op := range ops {
		if !ids[op.Id] {
			out = append(out, op)
		}
	}
	return out
}
