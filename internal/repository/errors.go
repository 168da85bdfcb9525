package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update matched no row
	// because the state moved on, or a unique key was already taken.
	ErrConflict = errors.New("conflict: state changed concurrently")

	// ErrForeignKeyViolation is returned when a referenced project or
	// member row is missing.
	ErrForeignKeyViolation = errors.New("foreign key violation")
)
