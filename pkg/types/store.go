package types

import (
	"context"
	"errors"
)

// Store is the data-access contract the reconcilers and the optimistic
// controller consume. Backends implement it over whatever storage the host
// application uses.
type Store interface {
	// FetchSlots returns the persisted slots of a container ordered by
	// OrderIndex.
	FetchSlots(ctx context.Context, containerID string) ([]Slot, error)

	// FetchAssociations returns every association of a container.
	FetchAssociations(ctx context.Context, containerID string) ([]Association, error)

	// FetchRecord returns the record with the given ID.
	// Returns ErrNotFound if no record exists with that ID.
	FetchRecord(ctx context.Context, recordID string) (*Record, error)

	// ApplyOperation executes a single reconciler operation.
	ApplyOperation(ctx context.Context, op Operation) error

	// WriteField commits one field of a record, or the title of a slot.
	WriteField(ctx context.Context, ownerID, fieldName string, value any) error
}

// Transactor is implemented by stores that can run several writes
// atomically. fn receives a Store bound to the transaction; returning an
// error from fn rolls every write back.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Backend is a Store with lifecycle and the admin writes used by the CLI:
// assigning slots to external parties and putting records.
type Backend interface {
	Store
	Transactor

	// Attach connects the backend described by config. Returns
	// ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent.
	Detach() error

	// AssignSlot sets or clears the external reference that protects a slot.
	AssignSlot(ctx context.Context, slotID string, assignee *string) error

	// PutRecord creates or replaces a record. When RecordID is empty a new
	// UUID v7 is generated. Returns the ID used.
	PutRecord(ctx context.Context, r *Record) (string, error)

	// FetchRecords returns every record of a container.
	FetchRecords(ctx context.Context, containerID string) ([]*Record, error)
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Store operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrUnknownOpKind = errors.New("unknown operation kind")
	ErrSlotProtected = errors.New("slot is assigned and cannot be deleted")
)
