package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorUnknownBloodGroup means a stock row is missing for a fixed reference
// blood group. That is a configuration problem, not user input.
var ErrorUnknownBloodGroup = errors.New("unknown blood group")

// ValidationError reports malformed input. Always safe to show the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// EligibilityError reports why a donor may not donate. RemainingDays is set
// only for the donation-interval rule.
type EligibilityError struct {
	Reason        string
	RemainingDays int
}

func (e *EligibilityError) Error() string {
	return e.Reason
}

// InsufficientStockError is returned when a debit would drive a blood group's
// available units below zero. The ledger row is left untouched.
type InsufficientStockError struct {
	GroupCode string
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: required %d, available %d",
		e.GroupCode, e.Required, e.Available)
}

// InvalidStateError reports a state-machine transition attempted from the
// wrong status, e.g. approving a request that is no longer Pending. It means
// the caller acted on a stale view.
type InvalidStateError struct {
	Entity string
	ID     int
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d is not in a valid state for this operation (current: %s)",
		e.Entity, e.ID, e.Status)
}
