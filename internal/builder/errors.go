package builder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// ErrorKind classifies the error that ended a run.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindProducer          ErrorKind = "producer"
)

// ValidationError reports malformed input caught before production
// starts. These never reach the worker.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err as a validation failure of the named field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// InsufficientFundsError is returned by a producer that cannot cover fees
// or outputs from the coins it was given.
type InsufficientFundsError struct {
	Required  btcutil.Amount
	Available btcutil.Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %v, have %v", e.Required, e.Available)
}

// Classify maps a run error onto the taxonomy. Anything that is neither a
// validation nor a funding failure counts as a producer error.
func Classify(err error) ErrorKind {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	var fErr *InsufficientFundsError
	if errors.As(err, &fErr) {
		return KindInsufficientFunds
	}
	return KindProducer
}
