// Package reconcile computes the operations that converge persisted state to
// a user-edited desired state.
//
// Slots are reconciled by diff: Positional pairs desired and persisted rows
// by position, ByIdentity pairs them by slot ID. Protected slots are never
// deleted by either. Associations are reconciled by full replace: Replace
// deletes every row of the container and inserts the desired set tagged with
// a status.
//
// Reconcilers are pure. They return an OperationBatch and never touch a
// store; package executor applies batches.
package reconcile
