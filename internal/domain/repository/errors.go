package repository

import "errors"

var (
	// ErrNotFound means the record does not exist (or, for refresh entries, has expired).
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness constraint on the provider identity was hit.
	ErrConflict = errors.New("conflict")

	// ErrHandleTaken means the generated login handle collided with an existing one.
	ErrHandleTaken = errors.New("login handle taken")
)

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
