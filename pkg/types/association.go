package types

import (
	"errors"
	"time"
)

// Status is the lifecycle status of a container's association set.
type Status string

// Association statuses.
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Association errors.
var (
	ErrInvalidStatus    = errors.New("invalid status value")
	ErrDuplicateSubject = errors.New("subject listed more than once")
	ErrInvalidPayload   = errors.New("payload values must be scalars")
)

// Validate returns ErrInvalidStatus unless s is draft or published.
func (s Status) Validate() error {
	switch s {
	case StatusDraft, StatusPublished:
		return nil
	default:
		return ErrInvalidStatus
	}
}

// Association links a container to a subject, for example a prize selected
// for a period. Associations have no identity of their own; they are always
// addressed as the full set belonging to ContainerID. Status is a property
// of the whole set, denormalized onto each row.
type Association struct {
	ContainerID string         `json:"container_id"`
	SubjectID   string         `json:"subject_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ValidatePayload checks that every payload value is a scalar (string,
// bool, number, or nil).
func (a Association) ValidatePayload() error {
	for _, v := range a.Payload {
		switch v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64:
		default:
			return ErrInvalidPayload
		}
	}
	return nil
}
