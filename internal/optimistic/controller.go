// Package optimistic applies single-field edits locally before they are
// committed and undoes them when the commit fails.
//
// Most fields revert in place: the value captured before the write is put
// back, unless a newer write to the same field has superseded it, in which
// case the newer write inherits the captured value. Fields
// that feed derived views revert by re-fetching the whole owner from the
// store instead. Commits are never cancelled; Close waits for every
// in-flight commit.
package optimistic

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/curator/internal/logging"
	"github.com/mesh-intelligence/curator/internal/metrics"
	"github.com/mesh-intelligence/curator/pkg/types"
)

// ErrClosed is returned by mutations applied after Close.
var ErrClosed = errors.New("controller is closed")

// CommitFunc persists one mutation.
type CommitFunc func(ctx context.Context) error

// Fetcher loads the authoritative copy of an owner. types.Store
// implements it.
type Fetcher interface {
	FetchRecord(ctx context.Context, recordID string) (*types.Record, error)
}

// Reason says why local state changed.
type Reason string

// Change reasons.
const (
	ReasonLoaded    Reason = "loaded"
	ReasonApplied   Reason = "applied"
	ReasonStaged    Reason = "staged"
	ReasonReverted  Reason = "reverted"
	ReasonRefetched Reason = "refetched"
)

// Change describes one local state change. Field is empty for changes
// that replace a whole owner (load, refetch). Present is false when the
// field was removed.
type Change struct {
	OwnerID    string
	Field      string
	Value      any
	Present    bool
	Reason     Reason
	MutationID string
}

type fieldKey struct {
	owner string
	field string
}

// staged holds an uncommitted value and what was there before the first
// Stage call.
type staged struct {
	value       any
	previous    any
	hadPrevious bool
	prev        *Mutation
}

// Controller owns the local view of editable fields.
type Controller struct {
	store   types.Store
	fetcher Fetcher
	logger  *zap.Logger
	metrics *metrics.Recorder

	mu         sync.Mutex
	state      map[string]map[string]any
	lastWriter map[fieldKey]*Mutation
	staged     map[fieldKey]staged
	observers  map[int]func(Change)
	nextObs    int
	closed     bool

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFetcher overrides where refetch reverts read from. It defaults to
// the store.
func WithFetcher(f Fetcher) Option {
	return func(c *Controller) { c.fetcher = f }
}

// NewController creates a Controller committing through store.
func NewController(store types.Store, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		fetcher:    store,
		logger:     zap.NewNop(),
		state:      make(map[string]map[string]any),
		lastWriter: make(map[fieldKey]*Mutation),
		staged:     make(map[fieldKey]staged),
		observers:  make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load seeds local state from records, replacing whatever was held for
// their owners.
func (c *Controller) Load(records ...*types.Record) {
	changes := make([]Change, 0, len(records))
	c.mu.Lock()
	for _, r := range records {
		if r == nil {
			continue
		}
		c.state[r.RecordID] = r.CloneFields()
		changes = append(changes, Change{OwnerID: r.RecordID, Reason: ReasonLoaded})
	}
	obs := c.observerList()
	c.mu.Unlock()
	notify(obs, changes...)
}

// Subscribe registers fn to be called after every local change. Calls
// happen on the goroutine that made the change. The returned function
// removes the subscription.
func (c *Controller) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Value returns the local value of a field.
func (c *Controller) Value(ownerID, field string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[ownerID][field]
	return v, ok
}

// Snapshot returns a copy of the local fields of an owner.
func (c *Controller) Snapshot(ownerID string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.state[ownerID]))
	for k, v := range c.state[ownerID] {
		out[k] = v
	}
	return out
}

// Apply validates value, writes it locally, notifies observers and runs
// commit in the background. An invalid value settles the mutation as
// reverted right away without touching local state or calling commit.
func (c *Controller) Apply(ctx context.Context, ownerID, field string, value any, commit CommitFunc) *Mutation {
	return c.apply(ctx, ownerID, field, value, commit)
}

// Write is Apply with a commit that writes the field through the store.
func (c *Controller) Write(ctx context.Context, ownerID, field string, value any) *Mutation {
	return c.Apply(ctx, ownerID, field, value, c.storeCommit(ownerID, field, value))
}

// Stage writes value locally without committing, for fields edited
// keystroke by keystroke. Blur commits the staged value.
func (c *Controller) Stage(ownerID, field string, value any) error {
	v, err := types.ValidateField(field, value)
	if err != nil {
		return err
	}
	key := fieldKey{ownerID, field}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	s, ok := c.staged[key]
	if !ok {
		s.previous, s.hadPrevious = c.state[ownerID][field]
		s.prev = c.lastWriter[key]
	}
	s.value = v
	c.staged[key] = s
	c.set(ownerID, field, v)
	obs := c.observerList()
	c.mu.Unlock()

	notify(obs, Change{OwnerID: ownerID, Field: field, Value: v, Present: true, Reason: ReasonStaged})
	return nil
}

// Blur commits the value staged for a field through the store. It returns
// nil when nothing is staged. A direct Apply to the field discards what
// was staged.
func (c *Controller) Blur(ctx context.Context, ownerID, field string) *Mutation {
	key := fieldKey{ownerID, field}
	c.mu.Lock()
	s, ok := c.staged[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.apply(ctx, ownerID, field, s.value, c.storeCommit(ownerID, field, s.value))
}

// Close stops accepting mutations and waits for in-flight commits.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) storeCommit(ownerID, field string, value any) CommitFunc {
	return func(ctx context.Context) error {
		return c.store.WriteField(ctx, ownerID, field, value)
	}
}

// apply starts a write. A value staged for the field is consumed: the write
// reverts to what the field held before staging began.
func (c *Controller) apply(ctx context.Context, ownerID, field string, value any, commit CommitFunc) *Mutation {
	m := newMutation(uuid.Must(uuid.NewV7()).String(), ownerID, field, value)

	v, err := types.ValidateField(field, value)
	if err != nil {
		c.metrics.ObserveMutation(field, metrics.ResultRejected)
		m.settle(StateReverted, err)
		return m
	}
	m.Value = v
	key := fieldKey{ownerID, field}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		m.settle(StateReverted, ErrClosed)
		return m
	}
	if s, ok := c.staged[key]; ok {
		m.previous, m.hadPrevious, m.prev = s.previous, s.hadPrevious, s.prev
		delete(c.staged, key)
	} else {
		m.previous, m.hadPrevious = c.state[ownerID][field]
		m.prev = c.lastWriter[key]
	}
	if m.prev != nil {
		m.prev.next = m
	}
	c.set(ownerID, field, v)
	c.lastWriter[key] = m
	c.wg.Add(1)
	obs := c.observerList()
	c.mu.Unlock()

	notify(obs, Change{OwnerID: ownerID, Field: field, Value: v, Present: true, Reason: ReasonApplied, MutationID: m.ID})

	go c.run(context.WithoutCancel(ctx), m, commit)
	return m
}

func (c *Controller) run(ctx context.Context, m *Mutation, commit CommitFunc) {
	defer c.wg.Done()

	err := commit(ctx)
	if err == nil {
		c.confirm(m)
		c.metrics.ObserveMutation(m.Field, metrics.ResultConfirmed)
		m.settle(StateConfirmed, nil)
		return
	}

	rerr := &types.MutationRevertError{
		OwnerID:   m.OwnerID,
		FieldName: m.Field,
		Attempted: m.Value,
		Err:       err,
	}
	if types.FieldRevertStrategy(m.Field) == types.RevertRefetch {
		if fetchErr := c.refetch(ctx, m, rerr); fetchErr != nil {
			c.logger.Warn("refetch after failed write, reverting in place",
				zap.String("owner", m.OwnerID), zap.Error(fetchErr))
			c.revertInPlace(m, rerr)
		}
	} else {
		c.revertInPlace(m, rerr)
	}

	c.logger.Info("write reverted",
		zap.String("owner", m.OwnerID),
		zap.String("field", m.Field),
		zap.Bool("refetched", rerr.Refetched),
		zap.Error(err),
	)
	c.metrics.ObserveMutation(m.Field, metrics.ResultReverted)
	m.settle(StateReverted, rerr)
}

// confirm detaches m from the writes before it. Their values can no
// longer come back: the store now holds m's value or something newer.
func (c *Controller) confirm(m *Mutation) {
	c.mu.Lock()
	if m.prev != nil {
		m.prev.next = nil
		m.prev = nil
	}
	c.mu.Unlock()
}

// revertInPlace undoes m. When m is the last writer of the field the
// captured value is restored. Otherwise m is spliced out of the chain and
// the write that superseded it inherits the captured value, so a later
// failure of that write restores what the field held before either.
func (c *Controller) revertInPlace(m *Mutation, rerr *types.MutationRevertError) {
	key := fieldKey{m.OwnerID, m.Field}
	c.mu.Lock()
	if c.lastWriter[key] != m {
		if m.next != nil {
			m.next.previous, m.next.hadPrevious = m.previous, m.hadPrevious
			m.next.prev = m.prev
		}
		if m.prev != nil {
			m.prev.next = m.next
		}
		m.prev, m.next = nil, nil
		rerr.Restored = c.state[m.OwnerID][m.Field]
		c.mu.Unlock()
		return
	}

	if m.prev != nil {
		m.prev.next = nil
		c.lastWriter[key] = m.prev
	} else {
		delete(c.lastWriter, key)
	}
	if s, ok := c.staged[key]; ok {
		// The staged value stays visible; its eventual revert target moves.
		s.previous, s.hadPrevious, s.prev = m.previous, m.hadPrevious, m.prev
		c.staged[key] = s
		m.prev = nil
		rerr.Restored = s.value
		c.mu.Unlock()
		return
	}
	m.prev = nil
	if m.hadPrevious {
		c.set(m.OwnerID, m.Field, m.previous)
	} else {
		delete(c.state[m.OwnerID], m.Field)
	}
	rerr.Restored = m.previous
	obs := c.observerList()
	c.mu.Unlock()

	notify(obs, Change{
		OwnerID:    m.OwnerID,
		Field:      m.Field,
		Value:      m.previous,
		Present:    m.hadPrevious,
		Reason:     ReasonReverted,
		MutationID: m.ID,
	})
}

// refetch replaces every local field of the owner with the store's copy.
// In-flight sibling writes and staged values of the same owner are
// overwritten; a later failure of those writes leaves the fetched copy
// alone.
func (c *Controller) refetch(ctx context.Context, m *Mutation, rerr *types.MutationRevertError) error {
	r, err := c.fetcher.FetchRecord(ctx, m.OwnerID)
	if err != nil {
		return err
	}
	fields := r.CloneFields()

	c.mu.Lock()
	c.state[m.OwnerID] = fields
	for key := range c.lastWriter {
		if key.owner == m.OwnerID {
			delete(c.lastWriter, key)
		}
	}
	for key := range c.staged {
		if key.owner == m.OwnerID {
			delete(c.staged, key)
		}
	}
	obs := c.observerList()
	c.mu.Unlock()

	rerr.Refetched = true
	rerr.Restored = fields[m.Field]
	notify(obs, Change{OwnerID: m.OwnerID, Reason: ReasonRefetched, MutationID: m.ID})
	return nil
}

// set writes a local value. Callers hold c.mu.
func (c *Controller) set(ownerID, field string, v any) {
	fields, ok := c.state[ownerID]
	if !ok {
		fields = make(map[string]any)
		c.state[ownerID] = fields
	}
	fields[field] = v
}

// observerList snapshots observers. Callers hold c.mu.
func (c *Controller) observerList() []func(Change) {
	obs := make([]func(Change), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	return obs
}

func notify(obs []func(Change), changes ...Change) {
	for _, ch := range changes {
		for _, fn := range obs {
			fn(ch)
		}
	}
}
