// Package executor runs operation batches against a types.Store.
//
// Diff batches run their updates and deletes concurrently, then their
// creates one at a time. Failures are collected per operation and
// reported together as a *types.PartialBatchError; operations that
// succeeded stay applied. Replace batches run delete_all before
// insert_all and report a failed insert as a
// *types.ReplaceInconsistencyError. In atomic mode a store that
// implements types.Transactor runs the whole batch in one transaction.
package executor
