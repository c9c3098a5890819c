package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/curator/internal/sqlstore"
	"github.com/mesh-intelligence/curator/pkg/types"
)

func attach(t *testing.T) *sqlstore.Backend {
	t.Helper()
	b := sqlstore.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func titles(slots []types.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Title
	}
	return out
}

func TestSaveSlots_ProtectedScenario(t *testing.T) {
	ctx := context.Background()
	b := attach(t)
	ex := New(b)

	_, err := ex.SaveSlots(ctx, "book", []string{"A", "X", "C"}, 3)
	require.NoError(t, err)
	persisted, err := b.FetchSlots(ctx, "book")
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	author := "author-7"
	require.NoError(t, b.AssignSlot(ctx, persisted[1].SlotID, &author))

	batch, err := ex.SaveSlots(ctx, "book", []string{"A", "B", "", "D"}, 3)
	require.NoError(t, err)
	assert.Len(t, batch.Updates, 1)
	assert.Len(t, batch.Deletes, 1)
	assert.Len(t, batch.Creates, 1)

	got, err := b.FetchSlots(ctx, "book")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, titles(got))
	assert.Equal(t, persisted[1].SlotID, got[1].SlotID, "protected slot kept and retitled")
	assert.Equal(t, 4, got[2].OrderIndex)

	again, err := ex.SaveSlots(ctx, "book", []string{"A", "B", "", "D"}, 3)
	require.NoError(t, err)
	assert.True(t, again.Empty(), "saving the same list twice is a no-op")
}

func TestSaveSlots_CapacityMismatch(t *testing.T) {
	ctx := context.Background()
	b := attach(t)

	_, err := New(b).SaveSlots(ctx, "book", []string{"A", "B"}, 3)
	assert.ErrorIs(t, err, types.ErrCapacityMismatch)

	got, err := b.FetchSlots(ctx, "book")
	require.NoError(t, err)
	assert.Empty(t, got, "nothing written")
}

func TestSaveSlotsByIdentity(t *testing.T) {
	ctx := context.Background()
	b := attach(t)
	ex := New(b)

	_, err := ex.SaveSlots(ctx, "book", []string{"A", "B", "C"}, 3)
	require.NoError(t, err)
	persisted, err := b.FetchSlots(ctx, "book")
	require.NoError(t, err)

	desired := []types.DesiredSlot{
		{SlotID: persisted[2].SlotID, Title: "C"},
		{SlotID: persisted[0].SlotID, Title: "A"},
		{Title: "D"},
	}
	_, err = ex.SaveSlotsByIdentity(ctx, "book", desired, 3)
	require.NoError(t, err)

	got, err := b.FetchSlots(ctx, "book")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "D"}, titles(got))
	assert.Equal(t, persisted[2].SlotID, got[0].SlotID)
}

func TestSaveAssociations(t *testing.T) {
	ctx := context.Background()
	b := attach(t)
	ex := New(b)

	desired := []types.Association{
		{SubjectID: "prize-1", Payload: map[string]any{"rank": 1}},
		{SubjectID: "prize-2"},
	}
	_, err := ex.SaveAssociations(ctx, "period-1", desired, types.StatusPublished)
	require.NoError(t, err)

	got, err := b.FetchAssociations(ctx, "period-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, a := range got {
		assert.Equal(t, types.StatusPublished, a.Status)
	}

	batch, err := ex.SaveAssociations(ctx, "period-1", nil, types.StatusPublished)
	require.NoError(t, err)
	assert.NotNil(t, batch.DeleteAll)
	assert.Nil(t, batch.InsertAll)

	got, err = b.FetchAssociations(ctx, "period-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecute_Atomic(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*sqlstore.Backend, []types.Slot) {
		b := attach(t)
		_, err := New(b).SaveSlots(ctx, "book", []string{"A", "B"}, 2)
		require.NoError(t, err)
		slots, err := b.FetchSlots(ctx, "book")
		require.NoError(t, err)
		return b, slots
	}
	batchFor := func(slots []types.Slot) types.OperationBatch {
		renamed := slots[0]
		renamed.Title = "A2"
		return types.OperationBatch{
			ContainerID: "book",
			Updates:     []types.Operation{{Kind: types.OpUpdate, Target: renamed.SlotID, Slot: &renamed}},
			Deletes:     []types.Operation{{Kind: types.OpDelete, Target: "missing"}},
		}
	}

	t.Run("non-atomic keeps applied siblings", func(t *testing.T) {
		b, slots := setup(t)
		err := New(b).Execute(ctx, batchFor(slots))
		assert.ErrorIs(t, err, types.ErrNotFound)

		got, err := b.FetchSlots(ctx, "book")
		require.NoError(t, err)
		assert.Equal(t, []string{"A2", "B"}, titles(got))
	})

	t.Run("atomic rolls back", func(t *testing.T) {
		b, slots := setup(t)
		err := New(b, WithAtomic(true)).Execute(ctx, batchFor(slots))
		assert.ErrorIs(t, err, types.ErrNotFound)

		var pe *types.PartialBatchError
		require.ErrorAs(t, err, &pe)
		assert.True(t, pe.RolledBack)
		assert.Equal(t, 1, pe.Applied)

		got, err := b.FetchSlots(ctx, "book")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, titles(got))
	})

	t.Run("atomic replace keeps prior rows", func(t *testing.T) {
		b := attach(t)
		ex := New(b, WithAtomic(true))
		_, err := ex.SaveAssociations(ctx, "p1", []types.Association{{SubjectID: "s1"}}, types.StatusDraft)
		require.NoError(t, err)

		batch := replaceBatch(1)
		batch.InsertAll.Associations[0].Status = "bogus"
		err = ex.Execute(ctx, batch)
		assert.ErrorIs(t, err, types.ErrInvalidStatus)
		assert.NotErrorIs(t, err, types.ErrReplaceInconsistent)

		got, err := b.FetchAssociations(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "s1", got[0].SubjectID)
	})

	t.Run("non-atomic replace leaves container empty", func(t *testing.T) {
		b := attach(t)
		ex := New(b)
		_, err := ex.SaveAssociations(ctx, "p1", []types.Association{{SubjectID: "s1"}}, types.StatusDraft)
		require.NoError(t, err)

		batch := replaceBatch(1)
		batch.InsertAll.Associations[0].Status = "bogus"
		err = ex.Execute(ctx, batch)
		assert.ErrorIs(t, err, types.ErrReplaceInconsistent)

		got, err := b.FetchAssociations(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
