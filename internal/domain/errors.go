package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrVersionConflict indicates an optimistic-lock mismatch. Use
	// errors.As with *VersionConflictError to recover the stored state.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidQuantity indicates a requested quantity below 1.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrIntegrityViolation indicates duplicate ACTIVE lines for one
	// product where the merge-on-add rule should have prevented them.
	ErrIntegrityViolation = errors.New("cart integrity violation")
)

// VersionConflictError carries the stored version and total so the caller
// can retry with fresh values. A stale write is rejected, never skipped.
type VersionConflictError struct {
	CartID          string
	ExpectedVersion int64
	CurrentVersion  int64
	TotalPriceCents int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on cart %s: expected %d, stored %d", e.CartID, e.ExpectedVersion, e.CurrentVersion)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
