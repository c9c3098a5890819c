package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/curator/internal/logging"
	"github.com/mesh-intelligence/curator/internal/metrics"
	"github.com/mesh-intelligence/curator/internal/reconcile"
	"github.com/mesh-intelligence/curator/pkg/types"
)

// Batch kinds used as metric labels.
const (
	kindDiff    = "diff"
	kindReplace = "replace"
)

// defaultConcurrency bounds the update/delete phase.
const defaultConcurrency = 8

// Executor applies reconciler batches to a store.
type Executor struct {
	store       types.Store
	logger      *zap.Logger
	metrics     *metrics.Recorder
	atomic      bool
	concurrency int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics recorder. A nil recorder records nothing.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithAtomic runs every batch in one transaction when the store
// implements types.Transactor. Stores that do not are executed normally.
func WithAtomic(atomic bool) Option {
	return func(e *Executor) { e.atomic = atomic }
}

// WithConcurrency bounds how many updates and deletes run at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Executor over store.
func New(store types.Store, opts ...Option) *Executor {
	e := &Executor{
		store:       store,
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies batch. An empty batch is a no-op.
func (e *Executor) Execute(ctx context.Context, batch types.OperationBatch) error {
	if batch.Empty() {
		return nil
	}
	kind := kindDiff
	if batch.IsReplace() {
		kind = kindReplace
	}
	log := e.logger.With(
		zap.String("container", batch.ContainerID),
		zap.String("kind", kind),
		zap.Int("ops", batch.Len()),
	)
	log.Debug("executing batch")

	start := time.Now()
	var err error
	if tx, ok := e.store.(types.Transactor); ok && e.atomic {
		err = e.executeTx(ctx, tx, batch)
	} else if batch.IsReplace() {
		err = e.executeReplace(ctx, batch)
	} else {
		err = e.executeDiff(ctx, batch)
	}
	e.metrics.ObserveBatch(kind, resultOf(err), time.Since(start))

	if err != nil {
		log.Warn("batch failed", zap.Error(err))
		return err
	}
	log.Info("batch applied")
	return nil
}

func (e *Executor) apply(ctx context.Context, s types.Store, op types.Operation) error {
	err := s.ApplyOperation(ctx, op)
	e.metrics.ObserveOperation(string(op.Kind), err)
	return err
}

// executeDiff runs updates and deletes concurrently, then creates in order.
// Every operation is attempted; none is skipped because a sibling failed.
func (e *Executor) executeDiff(ctx context.Context, batch types.OperationBatch) error {
	var (
		mu       sync.Mutex
		failures []types.OpFailure
		applied  int
	)
	record := func(op types.Operation, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, types.OpFailure{Op: op, Err: err})
			return
		}
		applied++
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, group := range [][]types.Operation{batch.Updates, batch.Deletes} {
		for _, op := range group {
			g.Go(func() error {
				record(op, e.apply(ctx, e.store, op))
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, op := range batch.Creates {
		record(op, e.apply(ctx, e.store, op))
	}

	if len(failures) > 0 {
		return &types.PartialBatchError{
			ContainerID: batch.ContainerID,
			Failures:    failures,
			Applied:     applied,
		}
	}
	return nil
}

// executeReplace runs delete_all then insert_all. A failed delete_all
// leaves the container as it was; a failed insert_all leaves it empty.
func (e *Executor) executeReplace(ctx context.Context, batch types.OperationBatch) error {
	if err := e.apply(ctx, e.store, *batch.DeleteAll); err != nil {
		return &types.PartialBatchError{
			ContainerID: batch.ContainerID,
			Failures:    []types.OpFailure{{Op: *batch.DeleteAll, Err: err}},
		}
	}
	if batch.InsertAll == nil {
		return nil
	}
	if err := e.apply(ctx, e.store, *batch.InsertAll); err != nil {
		return &types.ReplaceInconsistencyError{ContainerID: batch.ContainerID, Err: err}
	}
	return nil
}

// executeTx runs every operation of batch sequentially inside one
// transaction and stops at the first failure.
func (e *Executor) executeTx(ctx context.Context, tx types.Transactor, batch types.OperationBatch) error {
	var failure *types.OpFailure
	applied := 0
	err := tx.InTx(ctx, func(s types.Store) error {
		for _, op := range batch.Ops() {
			if err := e.apply(ctx, s, op); err != nil {
				failure = &types.OpFailure{Op: op, Err: err}
				return err
			}
			applied++
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if failure == nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return &types.PartialBatchError{
		ContainerID: batch.ContainerID,
		Failures:    []types.OpFailure{*failure},
		Applied:     applied,
		RolledBack:  true,
	}
}

// SaveSlots reconciles desired titles positionally against the persisted
// slots of containerID and executes the resulting batch. The batch is
// returned even when execution fails so callers can report it.
func (e *Executor) SaveSlots(ctx context.Context, containerID string, desired []string, capacity int) (types.OperationBatch, error) {
	persisted, err := e.store.FetchSlots(ctx, containerID)
	if err != nil {
		return types.OperationBatch{}, fmt.Errorf("fetch slots: %w", err)
	}
	batch, err := reconcile.Positional(containerID, desired, persisted, capacity)
	if err != nil {
		return types.OperationBatch{}, err
	}
	return batch, e.Execute(ctx, batch)
}

// SaveSlotsByIdentity is SaveSlots matching desired entries to persisted
// slots by slot ID instead of position.
func (e *Executor) SaveSlotsByIdentity(ctx context.Context, containerID string, desired []types.DesiredSlot, capacity int) (types.OperationBatch, error) {
	persisted, err := e.store.FetchSlots(ctx, containerID)
	if err != nil {
		return types.OperationBatch{}, fmt.Errorf("fetch slots: %w", err)
	}
	batch, err := reconcile.ByIdentity(containerID, desired, persisted, capacity)
	if err != nil {
		return types.OperationBatch{}, err
	}
	return batch, e.Execute(ctx, batch)
}

// SaveAssociations replaces every association of containerID with desired,
// stamped with status.
func (e *Executor) SaveAssociations(ctx context.Context, containerID string, desired []types.Association, status types.Status) (types.OperationBatch, error) {
	batch, err := reconcile.Replace(containerID, desired, status)
	if err != nil {
		return types.OperationBatch{}, err
	}
	return batch, e.Execute(ctx, batch)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, types.ErrReplaceInconsistent):
		return metrics.ResultInconsistent
	case errors.Is(err, types.ErrPartialBatch):
		return metrics.ResultPartial
	default:
		return metrics.ResultError
	}
}
