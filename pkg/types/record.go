package types

import "time"

// Record is an externally owned row carrying mutable fields, such as a
// submission with a grade, feedback text and approval flags.
type Record struct {
	RecordID    string         `json:"record_id"`
	ContainerID string         `json:"container_id"`
	Fields      map[string]any `json:"fields"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Field returns the value of a field and whether it is set.
func (r *Record) Field(name string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// CloneFields returns a copy of the field map. Returns an empty map (not
// nil) when no fields are set.
func (r *Record) CloneFields() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}
