// Package id provides UUIDv7 identifiers for users, cards and events.
// UUIDv7 is time-ordered, so primary keys keep B-tree locality.
package id

import (
	"github.com/google/uuid"

	"cardvault/internal/core/apperror"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// New generates a new UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts string to ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseParam parses an identifier coming from a request and reports a
// validation error naming the offending field.
func ParseParam(field, value string) (ID, error) {
	v, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperror.NewValidation("invalid identifier").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return v, nil
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
