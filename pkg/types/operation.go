package types

import "fmt"

// OpKind tags an Operation.
type OpKind string

// Operation kinds. Create, update and delete address single slots;
// delete_all and insert_all address a whole association container.
const (
	OpCreate    OpKind = "create"
	OpUpdate    OpKind = "update"
	OpDelete    OpKind = "delete"
	OpDeleteAll OpKind = "delete_all"
	OpInsertAll OpKind = "insert_all"
)

// Operation is one write produced by a reconciler.
type Operation struct {
	Kind OpKind `json:"kind"`

	// Target is the slot ID for update and delete, the container ID for
	// delete_all and insert_all, and empty for create.
	Target string `json:"target,omitempty"`

	// Slot carries the new row for create and update.
	Slot *Slot `json:"slot,omitempty"`

	// Associations carries the rows for insert_all.
	Associations []Association `json:"associations,omitempty"`
}

// String renders the operation for logs and error messages.
func (o Operation) String() string {
	switch o.Kind {
	case OpCreate:
		if o.Slot != nil {
			return fmt.Sprintf("create(%q, %d)", o.Slot.Title, o.Slot.OrderIndex)
		}
	case OpUpdate:
		if o.Slot != nil {
			return fmt.Sprintf("update(%s, %q)", o.Target, o.Slot.Title)
		}
	case OpInsertAll:
		return fmt.Sprintf("insert_all(%s, %d)", o.Target, len(o.Associations))
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Target)
}

// OperationBatch is the ordered output of a reconciler. A diff batch fills
// Updates, Deletes and Creates; a replace batch fills DeleteAll and,
// when the desired set is non-empty, InsertAll. Batches are values: nothing
// in this module mutates one after a reconciler returns it.
type OperationBatch struct {
	ContainerID string      `json:"container_id"`
	Updates     []Operation `json:"updates,omitempty"`
	Deletes     []Operation `json:"deletes,omitempty"`
	Creates     []Operation `json:"creates,omitempty"`
	DeleteAll   *Operation  `json:"delete_all,omitempty"`
	InsertAll   *Operation  `json:"insert_all,omitempty"`
}

// IsReplace reports whether b is a full-replace batch.
func (b OperationBatch) IsReplace() bool {
	return b.DeleteAll != nil
}

// Ops returns every operation in execution order: updates, deletes,
// creates for diff batches; delete_all then insert_all for replace batches.
func (b OperationBatch) Ops() []Operation {
	ops := make([]Operation, 0, b.Len())
	if b.DeleteAll != nil {
		ops = append(ops, *b.DeleteAll)
	}
	if b.InsertAll != nil {
		ops = append(ops, *b.InsertAll)
	}
	ops = append(ops, b.Updates...)
	ops = append(ops, b.Deletes...)
	ops = append(ops, b.Creates...)
	return ops
}

// Len returns the number of operations in the batch.
func (b OperationBatch) Len() int {
	n := len(b.Updates) + len(b.Deletes) + len(b.Creates)
	if b.DeleteAll != nil {
		n++
	}
	if b.InsertAll != nil {
		n++
	}
	return n
}

// Empty reports whether the batch holds no operations.
func (b OperationBatch) Empty() bool {
	return b.Len() == 0
}
