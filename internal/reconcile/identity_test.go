package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/curator/pkg/types"
)

func TestByIdentityReorderKeepsProtection(t *testing.T) {
	persisted := []types.Slot{protectedSlot("1", 1, "a"), slot("2", 2, "b")}
	desired := []types.DesiredSlot{{SlotID: "2", Title: "b"}, {SlotID: "1", Title: "a"}}

	batch, err := ByIdentity("book", desired, persisted, 2)
	require.NoError(t, err)
	require.Len(t, batch.Updates, 2)
	assert.Empty(t, batch.Deletes)
	assert.Empty(t, batch.Creates)

	next, err := ApplySlots(persisted, batch)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "2", next[0].SlotID)
	assert.Equal(t, "1", next[1].SlotID)
	assert.True(t, next[1].Protected(), "protection moved with the row")
}

func TestByIdentityCases(t *testing.T) {
	persisted := []types.Slot{slot("1", 1, "a"), protectedSlot("2", 2, "b"), slot("3", 3, "c")}

	tests := []struct {
		name     string
		desired  []types.DesiredSlot
		capacity int
		updates  int
		deletes  []string
		creates  int
		wantErr  error
	}{
		{
			name:     "unchanged",
			desired:  []types.DesiredSlot{{SlotID: "1", Title: "a"}, {SlotID: "2", Title: "b"}, {SlotID: "3", Title: "c"}},
			capacity: 3,
		},
		{
			name:     "omitted rows deleted unless protected",
			desired:  []types.DesiredSlot{{SlotID: "1", Title: "a"}},
			capacity: 1,
			deletes:  []string{"3"},
		},
		{
			name:     "blank row with id clears free slot",
			desired:  []types.DesiredSlot{{SlotID: "1", Title: ""}, {SlotID: "2", Title: "b"}, {SlotID: "3", Title: "c"}},
			capacity: 2,
			updates:  0,
			deletes:  []string{"1"},
		},
		{
			name:     "blank row with id keeps protected slot",
			desired:  []types.DesiredSlot{{SlotID: "1", Title: "a"}, {SlotID: "2", Title: " "}, {SlotID: "3", Title: "c"}},
			capacity: 2,
		},
		{
			name:     "new rows are created",
			desired:  []types.DesiredSlot{{SlotID: "1", Title: "a"}, {SlotID: "2", Title: "b"}, {SlotID: "3", Title: "c"}, {Title: "d"}},
			capacity: 4,
			creates:  1,
		},
		{
			name:     "capacity mismatch",
			desired:  []types.DesiredSlot{{Title: "x"}},
			capacity: 2,
			wantErr:  types.ErrCapacityMismatch,
		},
		{
			name:     "unknown id",
			desired:  []types.DesiredSlot{{SlotID: "nope", Title: "x"}},
			capacity: 1,
			wantErr:  types.ErrNotFound,
		},
		{
			name:     "duplicate id",
			desired:  []types.DesiredSlot{{SlotID: "1", Title: "x"}, {SlotID: "1", Title: "y"}},
			capacity: 2,
			wantErr:  types.ErrInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := ByIdentity("book", tt.desired, persisted, tt.capacity)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, batch.Empty())
				return
			}
			require.NoError(t, err)

			var deletes []string
			for _, op := range batch.Deletes {
				deletes = append(deletes, op.Target)
			}
			assert.Len(t, batch.Updates, tt.updates)
			assert.Equal(t, tt.deletes, deletes)
			assert.Len(t, batch.Creates, tt.creates)
		})
	}
}

func TestByIdentityIdempotence(t *testing.T) {
	tests := []struct {
		name      string
		persisted []types.Slot
		desired   []types.DesiredSlot
	}{
		{
			name:      "reorder with create",
			persisted: []types.Slot{slot("1", 1, "a"), protectedSlot("2", 2, "b"), slot("3", 3, "c")},
			desired:   []types.DesiredSlot{{SlotID: "3", Title: "C"}, {Title: "new"}, {SlotID: "2", Title: "b"}},
		},
		{
			name:      "create where an unlisted protected row sits",
			persisted: []types.Slot{slot("1", 1, "a"), protectedSlot("2", 2, "b")},
			desired:   []types.DesiredSlot{{SlotID: "1", Title: "A"}, {Title: "new"}},
		},
		{
			name:      "several unlisted protected rows",
			persisted: []types.Slot{protectedSlot("1", 1, "a"), protectedSlot("2", 2, "b"), slot("3", 3, "c")},
			desired:   []types.DesiredSlot{{Title: "x"}, {Title: "y"}, {SlotID: "3", Title: "c"}},
		},
		{
			name:      "blank row keeps protected slot in place",
			persisted: []types.Slot{slot("1", 1, "a"), protectedSlot("2", 2, "b")},
			desired:   []types.DesiredSlot{{Title: "new"}, {SlotID: "2"}, {SlotID: "1", Title: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capacity := 0
			for _, d := range tt.desired {
				if !types.Blank(d.Title) {
					capacity++
				}
			}
			batch, err := ByIdentity("book", tt.desired, tt.persisted, capacity)
			require.NoError(t, err)
			next, err := ApplySlots(tt.persisted, batch)
			require.NoError(t, err)

			positions := map[int]string{}
			for _, s := range next {
				other, taken := positions[s.OrderIndex]
				require.False(t, taken, "slots %s and %s share order index %d", other, s.SlotID, s.OrderIndex)
				positions[s.OrderIndex] = s.SlotID
			}

			resaved := DesiredFromSlots(next)
			capacity = 0
			for _, d := range resaved {
				if !types.Blank(d.Title) {
					capacity++
				}
			}
			again, err := ByIdentity("book", resaved, next, capacity)
			require.NoError(t, err)
			assert.True(t, again.Empty(), "second pass: %v", again.Ops())
		})
	}
}

func TestByIdentityMovesUnlistedProtectedRowsAfterList(t *testing.T) {
	persisted := []types.Slot{slot("1", 1, "a"), protectedSlot("2", 2, "b")}
	desired := []types.DesiredSlot{{SlotID: "1", Title: "A"}, {Title: "new"}}

	batch, err := ByIdentity("book", desired, persisted, 2)
	require.NoError(t, err)

	next, err := ApplySlots(persisted, batch)
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, "A", next[0].Title)
	assert.Equal(t, "new", next[1].Title)
	assert.Equal(t, 2, next[1].OrderIndex)
	assert.Equal(t, "2", next[2].SlotID)
	assert.Equal(t, 3, next[2].OrderIndex)
	assert.True(t, next[2].Protected())
}

func TestDesiredFromSlots(t *testing.T) {
	got := DesiredFromSlots([]types.Slot{slot("3", 3, "c"), slot("1", 1, "a")})
	assert.Equal(t, []types.DesiredSlot{{SlotID: "1", Title: "a"}, {}, {SlotID: "3", Title: "c"}}, got)
}
