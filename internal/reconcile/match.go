package reconcile

import (
	"sort"
	"strings"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// Pairing is one position of a positional match.
type Pairing struct {
	// Index is the 0-based position. Positions at or beyond the desired
	// list and the highest OrderIndex are overflow positions holding
	// legacy rows with an out-of-range or duplicate OrderIndex.
	Index int

	// Desired is the trimmed desired title at Index; HasDesired is false
	// when it is blank or Index is past the end of the desired list.
	Desired    string
	HasDesired bool

	// Persisted is the row whose OrderIndex is Index+1, or nil.
	Persisted *types.Slot
}

// MatchPositional pairs desired[i] with the persisted row at position i.
//
// A persisted row's position is OrderIndex-1, not its offset in the slice,
// so deleting a middle row does not shift the rows after it on the next
// fetch. Matching is by position only: titles are free text and may
// collide. If a user retypes titles to move rows, the reconciler sees
// updates in place, and any protection at a position stays with that
// position.
func MatchPositional(desired []string, persisted []types.Slot) []Pairing {
	sorted := make([]types.Slot, len(persisted))
	copy(sorted, persisted)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderIndex != sorted[j].OrderIndex {
			return sorted[i].OrderIndex < sorted[j].OrderIndex
		}
		return sorted[i].SlotID < sorted[j].SlotID
	})

	byPos := make(map[int]*types.Slot, len(sorted))
	var overflow []*types.Slot
	n := len(desired)
	for i := range sorted {
		s := &sorted[i]
		pos := s.OrderIndex - 1
		if pos < 0 {
			overflow = append(overflow, s)
			continue
		}
		if _, taken := byPos[pos]; taken {
			overflow = append(overflow, s)
			continue
		}
		byPos[pos] = s
		if pos+1 > n {
			n = pos + 1
		}
	}

	pairs := make([]Pairing, 0, n+len(overflow))
	for i := 0; i < n; i++ {
		p := Pairing{Index: i, Persisted: byPos[i]}
		if i < len(desired) && !types.Blank(desired[i]) {
			p.Desired = strings.TrimSpace(desired[i])
			p.HasDesired = true
		}
		pairs = append(pairs, p)
	}
	for k, s := range overflow {
		pairs = append(pairs, Pairing{Index: n + k, Persisted: s})
	}
	return pairs
}

// countDesired returns the number of non-blank titles.
func countDesired(titles []string) int {
	n := 0
	for _, t := range titles {
		if !types.Blank(t) {
			n++
		}
	}
	return n
}
