package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrConsistency         = errors.New("consistency error")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNotFound            = errors.New("not found")
)

// ValidationError rejects an input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConsistencyError is returned at the atomic-write boundary when a linked write
// does not agree with the transaction it references.
type ConsistencyError struct {
	TransactionID int64
	Reason        string
}

func (e *ConsistencyError) Error() string {
	if e.TransactionID == 0 {
		return "consistency error: " + e.Reason
	}
	return fmt.Sprintf("consistency error: transaction %d: %s", e.TransactionID, e.Reason)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// ConflictError reports two writers contending for the same aggregate.
// Callers retry; nothing is merged.
type ConflictError struct {
	Key string
	Err error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("concurrency conflict on %q", e.Key)
	}
	return fmt.Sprintf("concurrency conflict on %q: %v", e.Key, e.Err)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

func (e *ConflictError) Unwrap() error { return e.Err }
