package types

import (
	"errors"
	"fmt"
	"strings"
)

// Reconciliation errors. Each failure path has its own sentinel so callers
// can pick a recovery (retry, re-fetch, warning) with errors.Is.
var (
	ErrCapacityMismatch    = errors.New("desired slot count does not match capacity")
	ErrPartialBatch        = errors.New("one or more batch operations failed")
	ErrReplaceInconsistent = errors.New("container emptied but insert failed")
	ErrMutationReverted    = errors.New("mutation commit failed and was reverted")
	ErrInvalidTransition   = errors.New("invalid state transition")
)

// CapacityError rejects a diff reconciliation before any operation is
// produced.
type CapacityError struct {
	ContainerID string
	Capacity    int
	Got         int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("container %s: %d non-blank slots, capacity %d", e.ContainerID, e.Got, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityMismatch }

// OpFailure records one failed operation of a batch.
type OpFailure struct {
	Op  Operation
	Err error
}

// PartialBatchError reports the failed operations of a diff batch. Sibling
// operations that succeeded stay applied unless RolledBack is set.
type PartialBatchError struct {
	ContainerID string
	Failures    []OpFailure
	Applied     int
	RolledBack  bool
}

func (e *PartialBatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "container %s: %d of %d operations failed", e.ContainerID, len(e.Failures), len(e.Failures)+e.Applied)
	if e.RolledBack {
		b.WriteString(" (rolled back)")
	}
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Op, f.Err)
	}
	return b.String()
}

func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrPartialBatch)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ReplaceInconsistencyError reports a full replace whose delete_all
// succeeded and whose insert_all failed. The container is left with zero
// associations; callers must treat the save as failed.
type ReplaceInconsistencyError struct {
	ContainerID string
	Err         error
}

func (e *ReplaceInconsistencyError) Error() string {
	return fmt.Sprintf("container %s left empty: insert failed: %v", e.ContainerID, e.Err)
}

func (e *ReplaceInconsistencyError) Unwrap() []error {
	return []error{ErrReplaceInconsistent, e.Err}
}

// MutationRevertError reports an optimistic write whose commit failed.
// Local state has already been reverted when the caller sees it.
type MutationRevertError struct {
	OwnerID   string
	FieldName string
	Attempted any
	Restored  any
	Refetched bool
	Err       error
}

func (e *MutationRevertError) Error() string {
	how := "restored previous value"
	if e.Refetched {
		how = "re-fetched owner"
	}
	return fmt.Sprintf("write %s.%s = %v failed (%s): %v", e.OwnerID, e.FieldName, e.Attempted, how, e.Err)
}

func (e *MutationRevertError) Unwrap() []error {
	return []error{ErrMutationReverted, e.Err}
}
