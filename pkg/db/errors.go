package db

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTerm is returned when a term is empty or only whitespace.
	ErrEmptyTerm = errors.New("term must be non-empty")

	// ErrDuplicateTerm is returned when adding a term that already exists.
	ErrDuplicateTerm = errors.New("term already exists")

	// ErrNotFound is returned when no entry has the requested term.
	ErrNotFound = errors.New("term not found")

	// ErrUnknownField is returned for a field outside {definition, source}.
	ErrUnknownField = errors.New("unknown field")

	// ErrStoreUnavailable is returned when the database cannot be opened or
	// a statement fails at the driver level.
	ErrStoreUnavailable = errors.New("glossary store unavailable")
)

// StoreError wraps a driver or filesystem failure. It matches both
// ErrStoreUnavailable and the underlying error.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }
