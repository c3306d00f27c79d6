package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
// Wrap them with context at the point of detection, e.g.
// fmt.Errorf("%w: currency is invalid", errs.ErrInvalid).
var (
	// ErrInvalid marks malformed or out-of-range input (InvalidData).
	ErrInvalid = errors.New("invalid")
	// ErrNotFound marks a referenced entity that is absent or soft-deleted (RecordNotFound).
	ErrNotFound = errors.New("not_found")
	// ErrUnauthorized marks a missing, unknown or expired credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict marks a uniqueness violation (RecordAlreadyExists).
	ErrConflict = errors.New("conflict")
)

var (
	// ErrForbidden is an Unauthorized failure caused by ownership rather than credentials.
	ErrForbidden = fmt.Errorf("%w: access denied", ErrUnauthorized)
	// ErrInsufficientFunds is returned by spending when overdraft is disabled.
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrInvalid)
	// ErrNonZeroBalance is returned when deactivating an account that still holds money.
	ErrNonZeroBalance = fmt.Errorf("%w: account balance must be zero", ErrInvalid)
)

// Kind names the taxonomy bucket an error belongs to, for logs and metrics.
// Errors outside the taxonomy report "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalid):
		return "invalid_data"
	case errors.Is(err, ErrNotFound):
		return "record_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "record_already_exists"
	default:
		return "internal"
	}
}

// Invalid wraps ErrInvalid with a message.
func Invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalid, msg) }

// NotFound wraps ErrNotFound with a message.
func NotFound(msg string) error { return fmt.Errorf("%w: %s", ErrNotFound, msg) }

// Unauthorized wraps ErrUnauthorized with a message.
func Unauthorized(msg string) error { return fmt.Errorf("%w: %s", ErrUnauthorized, msg) }

// Conflict wraps ErrConflict with a message.
func Conflict(msg string) error { return fmt.Errorf("%w: %s", ErrConflict, msg) }
