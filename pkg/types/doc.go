// Package types defines the entities, the data-access contract, and the
// standard error types shared by the curator reconcilers, the optimistic
// mutation controller, and the storage backends.
//
// Three reconciliation strategies are built on these types: positional diff
// over ordered Slots, full replace over a container's Associations, and
// optimistic single-field writes over MutableFields.
package types
