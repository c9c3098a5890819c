package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// ByIdentity computes the diff between desired slots and persisted slots by
// slot ID. Desired rows carrying an ID are matched to the persisted row with
// that ID, so protection follows the row when the user reorders the list.
// Rows without an ID are created. Persisted rows that no desired row names
// are deleted unless protected; a blank desired row naming an ID clears
// that slot under the same rule.
//
// Every surviving row ends up at a distinct OrderIndex. A protected row
// kept by a blank desired row stays at that row's position; protected rows
// no desired row names are moved, in their existing order, to the
// positions after the desired list.
//
// The capacity precondition is the same as Positional. A desired ID that is
// not persisted in the container returns types.ErrNotFound; an ID listed
// twice returns types.ErrInvalidData.
func ByIdentity(containerID string, desired []types.DesiredSlot, persisted []types.Slot, capacity int) (types.OperationBatch, error) {
	got := 0
	for _, d := range desired {
		if !types.Blank(d.Title) {
			got++
		}
	}
	if got != capacity {
		return types.OperationBatch{}, &types.CapacityError{ContainerID: containerID, Capacity: capacity, Got: got}
	}

	byID := make(map[string]types.Slot, len(persisted))
	for _, s := range persisted {
		byID[s.SlotID] = s
	}

	batch := types.OperationBatch{ContainerID: containerID}
	seen := make(map[string]bool, len(desired))
	for i, d := range desired {
		title := strings.TrimSpace(d.Title)
		if d.SlotID == "" {
			if title == "" {
				continue
			}
			batch.Creates = append(batch.Creates, types.Operation{
				Kind: types.OpCreate,
				Slot: &types.Slot{ContainerID: containerID, OrderIndex: i + 1, Title: title},
			})
			continue
		}

		if seen[d.SlotID] {
			return types.OperationBatch{}, fmt.Errorf("slot %s listed twice: %w", d.SlotID, types.ErrInvalidData)
		}
		seen[d.SlotID] = true
		p, ok := byID[d.SlotID]
		if !ok {
			return types.OperationBatch{}, fmt.Errorf("slot %s in container %s: %w", d.SlotID, containerID, types.ErrNotFound)
		}

		if title == "" {
			if !p.Protected() {
				batch.Deletes = append(batch.Deletes, types.Operation{Kind: types.OpDelete, Target: p.SlotID})
				continue
			}
			title = p.Title
		}
		if p.Title == title && p.OrderIndex == i+1 {
			continue
		}
		next := p
		next.Title = title
		next.OrderIndex = i + 1
		batch.Updates = append(batch.Updates, types.Operation{Kind: types.OpUpdate, Target: p.SlotID, Slot: &next})
	}

	var kept []types.Slot
	for _, s := range persisted {
		switch {
		case seen[s.SlotID]:
		case s.Protected():
			kept = append(kept, s)
		default:
			batch.Deletes = append(batch.Deletes, types.Operation{Kind: types.OpDelete, Target: s.SlotID})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].OrderIndex != kept[j].OrderIndex {
			return kept[i].OrderIndex < kept[j].OrderIndex
		}
		return kept[i].SlotID < kept[j].SlotID
	})
	for k, s := range kept {
		pos := len(desired) + k + 1
		if s.OrderIndex == pos {
			continue
		}
		next := s
		next.OrderIndex = pos
		batch.Updates = append(batch.Updates, types.Operation{Kind: types.OpUpdate, Target: s.SlotID, Slot: &next})
	}
	return batch, nil
}

// DesiredFromSlots builds an identity-keyed desired list that mirrors the
// persisted slots in order, ready for the caller to edit.
func DesiredFromSlots(persisted []types.Slot) []types.DesiredSlot {
	pairs := MatchPositional(nil, persisted)
	out := make([]types.DesiredSlot, 0, len(pairs))
	for _, p := range pairs {
		if p.Persisted == nil {
			out = append(out, types.DesiredSlot{})
			continue
		}
		out = append(out, types.DesiredSlot{SlotID: p.Persisted.SlotID, Title: p.Persisted.Title})
	}
	return out
}
