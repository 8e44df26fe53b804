// Package id generates the identifiers used by the storefront: sortable
// ULIDs for request tracing and random UUIDs for anonymous visitors.
package id

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a 26-character, time-sortable identifier.
func NewULID() string {
	return ulid.Make().String()
}

// ULIDTime extracts the creation time encoded in s.
func ULIDTime(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// NewVisitorID returns a random version 4 UUID.
func NewVisitorID() string {
	return uuid.NewString()
}

// IsVisitorID reports whether s is a canonical version 4 UUID.
func IsVisitorID(s string) bool {
	u, err := uuid.Parse(s)
	return err == nil && u.Version() == 4 && u.String() == s
}
