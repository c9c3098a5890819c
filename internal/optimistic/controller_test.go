package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/curator/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errOffline = errors.New("offline")

// fakeStore serves records from memory and fails writes when failWrites
// is set.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string]*types.Record
	writes     []types.MutableField
	failWrites bool
}

func newFakeStore(records ...*types.Record) *fakeStore {
	s := &fakeStore{records: make(map[string]*types.Record)}
	for _, r := range records {
		s.records[r.RecordID] = r
	}
	return s
}

func (s *fakeStore) FetchSlots(context.Context, string) ([]types.Slot, error) { return nil, nil }
func (s *fakeStore) FetchAssociations(context.Context, string) ([]types.Association, error) {
	return nil, nil
}
func (s *fakeStore) ApplyOperation(context.Context, types.Operation) error { return nil }

func (s *fakeStore) FetchRecord(_ context.Context, id string) (*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &types.Record{RecordID: r.RecordID, ContainerID: r.ContainerID, Fields: r.CloneFields()}, nil
}

func (s *fakeStore) WriteField(_ context.Context, owner, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, types.MutableField{OwnerID: owner, FieldName: field, Value: value})
	if s.failWrites {
		return errOffline
	}
	return nil
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func record(id string, fields map[string]any) *types.Record {
	return &types.Record{RecordID: id, ContainerID: "class-1", Fields: fields}
}

func failing(context.Context) error { return errOffline }
func succeeding(context.Context) error { return nil }

func newLoaded(t *testing.T, store types.Store, records ...*types.Record) *Controller {
	t.Helper()
	c := NewController(store)
	c.Load(records...)
	t.Cleanup(c.Close)
	return c
}

func TestApply_Confirmed(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 6}))

	m := c.Apply(context.Background(), "s1", types.FieldGrade, 9.0, succeeding)
	v, _ := c.Value("s1", types.FieldGrade)
	assert.Equal(t, 9, v, "visible before commit settles, normalized to int")

	require.NoError(t, m.Wait(context.Background()))
	assert.Equal(t, StateConfirmed, m.State())
	v, _ = c.Value("s1", types.FieldGrade)
	assert.Equal(t, 9, v)
	assert.NotEmpty(t, m.ID)
}

func TestApply_RevertInPlace(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 6}))

	var mu sync.Mutex
	var seen []Change
	c.Subscribe(func(ch Change) {
		mu.Lock()
		seen = append(seen, ch)
		mu.Unlock()
	})

	m := c.Apply(context.Background(), "s1", types.FieldGrade, 9, failing)
	err := m.Wait(context.Background())

	assert.ErrorIs(t, err, types.ErrMutationReverted)
	assert.ErrorIs(t, err, errOffline)
	var rerr *types.MutationRevertError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 9, rerr.Attempted)
	assert.Equal(t, 6, rerr.Restored)
	assert.False(t, rerr.Refetched)
	assert.Equal(t, StateReverted, m.State())

	v, _ := c.Value("s1", types.FieldGrade)
	assert.Equal(t, 6, v)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, ReasonApplied, seen[0].Reason)
	assert.Equal(t, 9, seen[0].Value)
	assert.Equal(t, ReasonReverted, seen[1].Reason)
	assert.Equal(t, 6, seen[1].Value)
}

func TestApply_RevertRemovesNewField(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{}))

	m := c.Apply(context.Background(), "s1", types.FieldFeedback, "nice", failing)
	require.Error(t, m.Wait(context.Background()))

	_, ok := c.Value("s1", types.FieldFeedback)
	assert.False(t, ok)
}

func TestApply_RevertRefetch(t *testing.T) {
	server := record("s1", map[string]any{"certificate_approved": false, "grade": 4.0})
	c := newLoaded(t, newFakeStore(server), record("s1", map[string]any{"certificate_approved": false, "grade": 7}))

	m := c.Apply(context.Background(), "s1", types.FieldCertificateApproved, true, failing)
	err := m.Wait(context.Background())

	var rerr *types.MutationRevertError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Refetched)
	assert.Equal(t, false, rerr.Restored)
	assert.Equal(t, map[string]any{"certificate_approved": false, "grade": 4.0}, c.Snapshot("s1"),
		"whole owner replaced with the store copy")
}

func TestApply_RefetchFailureFallsBackInPlace(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"certificate_approved": false}))

	m := c.Apply(context.Background(), "s1", types.FieldCertificateApproved, true, failing)
	err := m.Wait(context.Background())

	var rerr *types.MutationRevertError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Refetched)
	v, _ := c.Value("s1", types.FieldCertificateApproved)
	assert.Equal(t, false, v)
}

func TestApply_LastWriteWins(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 5}))
	ctx := context.Background()

	release := make(chan struct{})
	first := c.Apply(ctx, "s1", types.FieldGrade, 7, func(context.Context) error {
		<-release
		return errOffline
	})
	second := c.Apply(ctx, "s1", types.FieldGrade, 8, succeeding)
	require.NoError(t, second.Wait(ctx))

	close(release)
	assert.Error(t, first.Wait(ctx))

	v, _ := c.Value("s1", types.FieldGrade)
	assert.Equal(t, 8, v, "a superseded write does not clobber the newer value")
}

func TestApply_StackedRevertsUnwind(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 5}))
	ctx := context.Background()

	releaseFirst := make(chan struct{})
	first := c.Apply(ctx, "s1", types.FieldGrade, 7, func(context.Context) error {
		<-releaseFirst
		return errOffline
	})
	second := c.Apply(ctx, "s1", types.FieldGrade, 8, failing)
	require.Error(t, second.Wait(ctx))
	v, _ := c.Value("s1", types.FieldGrade)
	assert.Equal(t, 7, v)

	close(releaseFirst)
	require.Error(t, first.Wait(ctx))
	v, _ = c.Value("s1", types.FieldGrade)
	assert.Equal(t, 5, v)
}

func TestApply_StackedRevertsUnwindOldestFirst(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 5}))
	ctx := context.Background()

	releaseFirst := make(chan struct{})
	releaseSecond := make(chan struct{})
	first := c.Apply(ctx, "s1", types.FieldGrade, 7, func(context.Context) error {
		<-releaseFirst
		return errOffline
	})
	second := c.Apply(ctx, "s1", types.FieldGrade, 8, func(context.Context) error {
		<-releaseSecond
		return errOffline
	})

	close(releaseFirst)
	require.Error(t, first.Wait(ctx))
	v, _ := c.Value("s1", types.FieldGrade)
	assert.Equal(t, 8, v, "the newer write stays visible while it is in flight")

	close(releaseSecond)
	require.Error(t, second.Wait(ctx))
	v, _ = c.Value("s1", types.FieldGrade)
	assert.Equal(t, 5, v, "both writes failed, so the field is back to its loaded value")
}

func TestApply_RevertChainOfThree(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 5}))
	ctx := context.Background()

	blocked := func(release chan struct{}, err error) CommitFunc {
		return func(context.Context) error {
			<-release
			return err
		}
	}
	r1, r2, r3 := make(chan struct{}), make(chan struct{}), make(chan struct{})
	m1 := c.Apply(ctx, "s1", types.FieldGrade, 6, blocked(r1, nil))
	m2 := c.Apply(ctx, "s1", types.FieldGrade, 7, blocked(r2, errOffline))
	m3 := c.Apply(ctx, "s1", types.FieldGrade, 8, blocked(r3, errOffline))

	close(r2)
	require.Error(t, m2.Wait(ctx))
	close(r1)
	require.NoError(t, m1.Wait(ctx))
	close(r3)
	require.Error(t, m3.Wait(ctx))

	v, _ := c.Value("s1", types.FieldGrade)
	assert.Equal(t, 6, v, "only the confirmed write survives")
}

func TestApply_InvalidValue(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"grade": 5}))
	var changes int
	c.Subscribe(func(Change) { changes++ })

	called := false
	m := c.Apply(context.Background(), "s1", types.FieldGrade, 11, func(context.Context) error {
		called = true
		return nil
	})

	select {
	case <-m.Done():
	default:
		t.Fatal("invalid mutation should settle immediately")
	}
	assert.ErrorIs(t, m.Err(), types.ErrInvalidFieldValue)
	assert.Equal(t, StateReverted, m.State())
	assert.False(t, called)
	assert.Zero(t, changes)

	m = c.Apply(context.Background(), "s1", "colour", "red", succeeding)
	assert.ErrorIs(t, m.Err(), types.ErrUnknownField)
}

func TestApply_CommitOutlivesCallerContext(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{}))
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	proceed := make(chan struct{})
	m := c.Apply(ctx, "s1", types.FieldApproved, true, func(ctx context.Context) error {
		close(started)
		<-proceed
		return ctx.Err()
	})
	<-started
	cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.Canceled)

	close(proceed)
	require.NoError(t, m.Wait(context.Background()))
	assert.Equal(t, StateConfirmed, m.State())
}

func TestWrite_UsesStore(t *testing.T) {
	store := newFakeStore()
	c := newLoaded(t, store, record("s1", map[string]any{}))

	require.NoError(t, c.Write(context.Background(), "s1", types.FieldPublic, true).Wait(context.Background()))
	require.Len(t, store.writes, 1)
	assert.Equal(t, types.MutableField{OwnerID: "s1", FieldName: types.FieldPublic, Value: true}, store.writes[0])
}

func TestStageAndBlur(t *testing.T) {
	store := newFakeStore()
	c := newLoaded(t, store, record("s1", map[string]any{"feedback": "ok"}))
	ctx := context.Background()

	require.NoError(t, c.Stage("s1", types.FieldFeedback, "g"))
	require.NoError(t, c.Stage("s1", types.FieldFeedback, "go"))
	require.NoError(t, c.Stage("s1", types.FieldFeedback, "good"))
	assert.Zero(t, store.writeCount(), "staging does not commit")
	v, _ := c.Value("s1", types.FieldFeedback)
	assert.Equal(t, "good", v)

	m := c.Blur(ctx, "s1", types.FieldFeedback)
	require.NotNil(t, m)
	require.NoError(t, m.Wait(ctx))
	assert.Equal(t, 1, store.writeCount())
	assert.Nil(t, c.Blur(ctx, "s1", types.FieldFeedback), "nothing left to commit")

	store.failWrites = true
	require.NoError(t, c.Stage("s1", types.FieldFeedback, "bad"))
	require.NoError(t, c.Stage("s1", types.FieldFeedback, "badly"))
	require.Error(t, c.Blur(ctx, "s1", types.FieldFeedback).Wait(ctx))
	v, _ = c.Value("s1", types.FieldFeedback)
	assert.Equal(t, "good", v, "revert goes back to the value before staging began")

	assert.ErrorIs(t, c.Stage("s1", types.FieldGrade, 0), types.ErrInvalidFieldValue)
}

func TestStage_DiscardedByApply(t *testing.T) {
	store := newFakeStore()
	c := newLoaded(t, store, record("s1", map[string]any{"feedback": "ok"}))
	ctx := context.Background()

	require.NoError(t, c.Stage("s1", types.FieldFeedback, "draft"))
	require.NoError(t, c.Apply(ctx, "s1", types.FieldFeedback, "final", succeeding).Wait(ctx))

	assert.Nil(t, c.Blur(ctx, "s1", types.FieldFeedback), "staged value was superseded")
	assert.Zero(t, store.writeCount())
	v, _ := c.Value("s1", types.FieldFeedback)
	assert.Equal(t, "final", v)
}

func TestStage_ApplyRevertsToValueBeforeStaging(t *testing.T) {
	c := newLoaded(t, newFakeStore(), record("s1", map[string]any{"feedback": "ok"}))
	ctx := context.Background()

	require.NoError(t, c.Stage("s1", types.FieldFeedback, "draft"))
	require.Error(t, c.Apply(ctx, "s1", types.FieldFeedback, "final", failing).Wait(ctx))

	v, _ := c.Value("s1", types.FieldFeedback)
	assert.Equal(t, "ok", v)
}

func TestStage_SurvivesRevertOfEarlierWrite(t *testing.T) {
	store := newFakeStore()
	c := newLoaded(t, store, record("s1", map[string]any{"feedback": "ok"}))
	ctx := context.Background()

	release := make(chan struct{})
	m := c.Apply(ctx, "s1", types.FieldFeedback, "first", func(context.Context) error {
		<-release
		return errOffline
	})
	require.NoError(t, c.Stage("s1", types.FieldFeedback, "typing"))

	close(release)
	require.Error(t, m.Wait(ctx))
	v, _ := c.Value("s1", types.FieldFeedback)
	assert.Equal(t, "typing", v, "staged text is not overwritten")

	store.failWrites = true
	require.Error(t, c.Blur(ctx, "s1", types.FieldFeedback).Wait(ctx))
	v, _ = c.Value("s1", types.FieldFeedback)
	assert.Equal(t, "ok", v)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c := newLoaded(t, newFakeStore())
	var n int
	unsubscribe := c.Subscribe(func(Change) { n++ })

	require.NoError(t, c.Apply(context.Background(), "s1", types.FieldGrade, 3, succeeding).Wait(context.Background()))
	assert.Equal(t, 1, n)

	unsubscribe()
	require.NoError(t, c.Apply(context.Background(), "s1", types.FieldGrade, 4, succeeding).Wait(context.Background()))
	assert.Equal(t, 1, n)
}

func TestClose_WaitsForCommits(t *testing.T) {
	c := NewController(newFakeStore())
	m := c.Apply(context.Background(), "s1", types.FieldGrade, 3, func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	c.Close()

	select {
	case <-m.Done():
	default:
		t.Fatal("Close returned before the commit settled")
	}
	m = c.Apply(context.Background(), "s1", types.FieldGrade, 4, succeeding)
	assert.ErrorIs(t, m.Err(), ErrClosed)
	assert.ErrorIs(t, c.Stage("s1", types.FieldGrade, 4), ErrClosed)
}
