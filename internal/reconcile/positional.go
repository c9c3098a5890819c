package reconcile

import (
	"github.com/mesh-intelligence/curator/pkg/types"
)

// Positional computes the diff between an ordered list of desired titles
// (blank meaning absent) and the persisted slots of a container.
//
// The count of non-blank desired titles must equal capacity; otherwise a
// *types.CapacityError is returned and no operation is produced. For each
// position:
//
//	desired set,   row present  -> update when the title differs
//	desired set,   row absent   -> create at OrderIndex i+1
//	desired blank, row free     -> delete
//	desired blank, row assigned -> kept as is
//
// Operations are grouped as updates, deletes, then creates.
func Positional(containerID string, desired []string, persisted []types.Slot, capacity int) (types.OperationBatch, error) {
	if got := countDesired(desired); got != capacity {
		return types.OperationBatch{}, &types.CapacityError{ContainerID: containerID, Capacity: capacity, Got: got}
	}

	batch := types.OperationBatch{ContainerID: containerID}
	for _, p := range MatchPositional(desired, persisted) {
		switch {
		case p.HasDesired && p.Persisted != nil:
			if p.Persisted.Title == p.Desired {
				continue
			}
			next := *p.Persisted
			next.Title = p.Desired
			batch.Updates = append(batch.Updates, types.Operation{
				Kind:   types.OpUpdate,
				Target: next.SlotID,
				Slot:   &next,
			})
		case p.HasDesired:
			batch.Creates = append(batch.Creates, types.Operation{
				Kind: types.OpCreate,
				Slot: &types.Slot{
					ContainerID: containerID,
					OrderIndex:  p.Index + 1,
					Title:       p.Desired,
				},
			})
		case p.Persisted != nil && !p.Persisted.Protected():
			batch.Deletes = append(batch.Deletes, types.Operation{
				Kind:   types.OpDelete,
				Target: p.Persisted.SlotID,
			})
		}
	}
	return batch, nil
}
