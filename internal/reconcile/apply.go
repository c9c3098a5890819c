package reconcile

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// ApplySlots returns the slots that result from executing a diff batch
// against persisted, without touching a store. Created slots receive a
// fresh UUID v7. The result is ordered by OrderIndex.
func ApplySlots(persisted []types.Slot, batch types.OperationBatch) ([]types.Slot, error) {
	byID := make(map[string]types.Slot, len(persisted))
	for _, s := range persisted {
		byID[s.SlotID] = s
	}
	for _, op := range batch.Updates {
		if _, ok := byID[op.Target]; !ok {
			return nil, fmt.Errorf("%s: %w", op, types.ErrNotFound)
		}
		byID[op.Target] = *op.Slot
	}
	for _, op := range batch.Deletes {
		s, ok := byID[op.Target]
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, types.ErrNotFound)
		}
		if s.Protected() {
			return nil, fmt.Errorf("%s: %w", op, types.ErrSlotProtected)
		}
		delete(byID, op.Target)
	}
	for _, op := range batch.Creates {
		s := *op.Slot
		s.SlotID = uuid.Must(uuid.NewV7()).String()
		byID[s.SlotID] = s
	}

	out := make([]types.Slot, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].SlotID < out[j].SlotID
	})
	return out, nil
}

// ApplyAssociations returns the associations of a container after executing
// a replace batch against persisted.
func ApplyAssociations(persisted []types.Association, batch types.OperationBatch) []types.Association {
	var out []types.Association
	for _, a := range persisted {
		if batch.DeleteAll != nil && a.ContainerID == batch.DeleteAll.Target {
			continue
		}
		out = append(out, a)
	}
	if batch.InsertAll != nil {
		out = append(out, batch.InsertAll.Associations...)
	}
	return out
}
