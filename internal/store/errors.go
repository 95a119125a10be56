package store

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted is returned when a task is already in its terminal
	// state, or when a municipality already holds a campaign completion.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrAlreadyUnlocked is returned when an achievement is already held.
	ErrAlreadyUnlocked = errors.New("achievement already unlocked")

	// ErrNotHeld is returned when removing an achievement the user does not have.
	ErrNotHeld = errors.New("achievement not held")
)

// isUniqueViolation reports whether err is a SQLite uniqueness failure. The
// campaign completion path treats this as a legitimate outcome, not an error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
