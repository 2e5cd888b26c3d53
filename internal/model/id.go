package model

import "github.com/oklog/ulid/v2"

// NewID returns a fresh ULID. Jobs and moves share the scheme so ids sort by
// creation time in both tables.
func NewID() string {
	return ulid.Make().String()
}

// ValidID reports whether s is a canonical ULID as produced by NewID.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
