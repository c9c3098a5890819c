package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mutable field names editable through the optimistic controller.
const (
	FieldGrade               = "grade"
	FieldFeedback            = "feedback"
	FieldApproved            = "approved"
	FieldPublic              = "public"
	FieldCertificateApproved = "certificate_approved"
	FieldTitle               = "title"
)

// Grade bounds.
const (
	MinGrade = 1
	MaxGrade = 10
)

// Field errors.
var (
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidFieldValue = errors.New("invalid field value")
)

// RevertStrategy selects how a failed optimistic write is undone.
type RevertStrategy int

const (
	// RevertInPlace restores the value captured before the write.
	RevertInPlace RevertStrategy = iota
	// RevertRefetch reloads the owning record from the store. Used for
	// fields that feed derived views which may already have re-rendered.
	RevertRefetch
)

// MutableField is a single optimistically edited value.
type MutableField struct {
	OwnerID   string `json:"owner_id"`
	FieldName string `json:"field_name"`
	Value     any    `json:"value"`
}

type fieldSpec struct {
	revert    RevertStrategy
	normalize func(any) (any, bool)
	parse     func(string) (any, error)
}

var fieldSpecs = map[string]fieldSpec{
	FieldGrade:               {RevertInPlace, normalizeGrade, parseInt},
	FieldFeedback:            {RevertInPlace, normalizeString, parseText},
	FieldApproved:            {RevertInPlace, normalizeBool, parseBool},
	FieldPublic:              {RevertInPlace, normalizeBool, parseBool},
	FieldCertificateApproved: {RevertRefetch, normalizeBool, parseBool},
	FieldTitle:               {RevertInPlace, normalizeTitle, parseText},
}

// ValidateField checks value against the schema of the named field and
// returns it in canonical form: grades as int, flags as bool, text as
// string. JSON numbers (float64) with an integral value are accepted as
// grades.
func ValidateField(name string, value any) (any, error) {
	spec, ok := fieldSpecs[name]
	if !ok {
		return nil, ErrUnknownField
	}
	v, ok := spec.normalize(value)
	if !ok {
		return nil, ErrInvalidFieldValue
	}
	return v, nil
}

// ParseFieldValue reads the text form of a value for the named field, as
// typed on a command line, and validates it. Text fields take raw unchanged,
// so "42" stays a string for feedback and titles.
func ParseFieldValue(name, raw string) (any, error) {
	spec, ok := fieldSpecs[name]
	if !ok {
		return nil, ErrUnknownField
	}
	v, err := spec.parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", name, raw, ErrInvalidFieldValue)
	}
	return ValidateField(name, v)
}

// FieldRevertStrategy returns the revert strategy of the named field.
// Unknown fields revert in place.
func FieldRevertStrategy(name string) RevertStrategy {
	return fieldSpecs[name].revert
}

// KnownField reports whether name is an editable field.
func KnownField(name string) bool {
	_, ok := fieldSpecs[name]
	return ok
}

func normalizeGrade(v any) (any, bool) {
	var g int
	switch n := v.(type) {
	case int:
		g = n
	case int32:
		g = int(n)
	case int64:
		g = int(n)
	case float64:
		if n != math.Trunc(n) {
			return nil, false
		}
		g = int(n)
	default:
		return nil, false
	}
	if g < MinGrade || g > MaxGrade {
		return nil, false
	}
	return g, true
}

func normalizeString(v any) (any, bool) {
	s, ok := v.(string)
	return s, ok
}

func normalizeTitle(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return strings.TrimSpace(s), true
}

func normalizeBool(v any) (any, bool) {
	b, ok := v.(bool)
	return b, ok
}

func parseInt(s string) (any, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseBool(s string) (any, error) {
	return strconv.ParseBool(strings.TrimSpace(s))
}

func parseText(s string) (any, error) {
	return s, nil
}
