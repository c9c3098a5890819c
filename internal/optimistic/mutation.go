package optimistic

import (
	"context"
	"sync"
)

// State is the lifecycle position of a Mutation.
type State string

// Mutation states. A mutation starts pending and settles exactly once.
const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateReverted  State = "reverted"
)

// Mutation is one optimistic write. The local value is visible as soon as
// Apply returns; the mutation settles when its commit finishes.
type Mutation struct {
	ID      string
	OwnerID string
	Field   string
	Value   any

	// Guarded by the controller's mutex. previous is what the field held
	// before this write; prev and next link the writes to the same field
	// that are still able to revert, oldest first.
	previous    any
	hadPrevious bool
	prev, next  *Mutation

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newMutation(id, ownerID, field string, value any) *Mutation {
	return &Mutation{
		ID:      id,
		OwnerID: ownerID,
		Field:   field,
		Value:   value,
		state:   StatePending,
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (m *Mutation) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the settlement error, nil while pending or once confirmed.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed when the mutation settles.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation settles or ctx ends. It returns the
// settlement error, or ctx.Err() if ctx ended first. Ending ctx does not
// stop the commit.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) settle(state State, err error) {
	m.mu.Lock()
	m.state = state
	m.err = err
	m.mu.Unlock()
	close(m.done)
}
