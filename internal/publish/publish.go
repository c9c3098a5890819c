// Package publish tracks the draft/published lifecycle of association
// containers. Status is never stored on its own; it is derived from the
// rows, and every transition is a full replace of the container.
package publish

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/curator/internal/logging"
	"github.com/mesh-intelligence/curator/pkg/types"
)

// Event names a lifecycle transition.
type Event string

// Lifecycle events.
const (
	EventSaveDraft Event = "save_draft"
	EventPublish   Event = "publish"
	EventUnpublish Event = "unpublish"
)

// Replacer performs a full replace of a container's associations.
// *executor.Executor implements it.
type Replacer interface {
	SaveAssociations(ctx context.Context, containerID string, desired []types.Association, status types.Status) (types.OperationBatch, error)
}

// Transition returns the status a container moves to when event is applied
// in status from. An empty from means the container has no rows. Saving a
// draft and publishing are legal from every state; unpublishing requires a
// published container.
func Transition(from types.Status, event Event) (types.Status, error) {
	switch event {
	case EventSaveDraft:
		return types.StatusDraft, nil
	case EventPublish:
		return types.StatusPublished, nil
	case EventUnpublish:
		if from == types.StatusPublished {
			return types.StatusDraft, nil
		}
		return "", fmt.Errorf("%s from %q: %w", event, from, types.ErrInvalidTransition)
	default:
		return "", fmt.Errorf("unknown event %q: %w", event, types.ErrInvalidTransition)
	}
}

// DeriveStatus reports the status of a container from its rows: published
// if any row is published, draft if rows exist and none is. ok is false
// when rows is empty. Rows with mixed statuses are tolerated.
func DeriveStatus(rows []types.Association) (status types.Status, ok bool) {
	if len(rows) == 0 {
		return "", false
	}
	for _, r := range rows {
		if r.Status == types.StatusPublished {
			return types.StatusPublished, true
		}
	}
	return types.StatusDraft, true
}

// Machine drives lifecycle transitions for association containers.
type Machine struct {
	store    types.Store
	replacer Replacer
	logger   *zap.Logger
}

// NewMachine creates a Machine reading from store and writing through
// replacer. A nil logger discards output.
func NewMachine(store types.Store, replacer Replacer, logger *zap.Logger) *Machine {
	return &Machine{store: store, replacer: replacer, logger: logging.OrNop(logger)}
}

// Status returns the derived status of containerID.
func (m *Machine) Status(ctx context.Context, containerID string) (types.Status, bool, error) {
	rows, err := m.store.FetchAssociations(ctx, containerID)
	if err != nil {
		return "", false, fmt.Errorf("fetch associations: %w", err)
	}
	status, ok := DeriveStatus(rows)
	return status, ok, nil
}

// SaveDraft replaces the container's associations with desired as drafts.
func (m *Machine) SaveDraft(ctx context.Context, containerID string, desired []types.Association) (types.OperationBatch, error) {
	return m.fire(ctx, containerID, EventSaveDraft, desired)
}

// Publish replaces the container's associations with desired as
// published. Publishing an empty set empties the container, which then
// reports no status.
func (m *Machine) Publish(ctx context.Context, containerID string, desired []types.Association) (types.OperationBatch, error) {
	return m.fire(ctx, containerID, EventPublish, desired)
}

// Unpublish re-saves the currently persisted associations as drafts.
func (m *Machine) Unpublish(ctx context.Context, containerID string) (types.OperationBatch, error) {
	rows, err := m.store.FetchAssociations(ctx, containerID)
	if err != nil {
		return types.OperationBatch{}, fmt.Errorf("fetch associations: %w", err)
	}
	from, _ := DeriveStatus(rows)
	to, err := Transition(from, EventUnpublish)
	if err != nil {
		return types.OperationBatch{}, err
	}
	return m.save(ctx, containerID, from, to, rows)
}

func (m *Machine) fire(ctx context.Context, containerID string, event Event, desired []types.Association) (types.OperationBatch, error) {
	from, _, err := m.Status(ctx, containerID)
	if err != nil {
		return types.OperationBatch{}, err
	}
	to, err := Transition(from, event)
	if err != nil {
		return types.OperationBatch{}, err
	}
	return m.save(ctx, containerID, from, to, desired)
}

func (m *Machine) save(ctx context.Context, containerID string, from, to types.Status, desired []types.Association) (types.OperationBatch, error) {
	batch, err := m.replacer.SaveAssociations(ctx, containerID, desired, to)
	if err != nil {
		return batch, err
	}
	m.logger.Info("container status changed",
		zap.String("container", containerID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("associations", len(desired)),
	)
	return batch, nil
}
