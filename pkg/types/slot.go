package types

import "strings"

// Slot is a positionally addressed named entry in an ordered list, such as a
// chapter title. A Slot with an empty SlotID has not been persisted yet.
type Slot struct {
	SlotID      string  `json:"slot_id"`
	ContainerID string  `json:"container_id"`
	OrderIndex  int     `json:"order_index"` // 1-based position within the container.
	Title       string  `json:"title"`
	AssignedTo  *string `json:"assigned_to"` // External party holding this slot; nil when free.
}

// Protected reports whether the slot is referenced by an external party.
// Protected slots may be retitled but are never deleted by reconciliation.
func (s Slot) Protected() bool {
	return s.AssignedTo != nil
}

// Persisted reports whether the slot has a storage identity.
func (s Slot) Persisted() bool {
	return s.SlotID != ""
}

// DesiredSlot is one row of a user-edited slot list for identity-keyed
// reconciliation. SlotID is empty for rows the user added.
type DesiredSlot struct {
	SlotID string `json:"slot_id,omitempty"`
	Title  string `json:"title"`
}

// Blank reports whether a desired title counts as absent.
func Blank(title string) bool {
	return strings.TrimSpace(title) == ""
}
