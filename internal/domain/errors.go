// Package domain holds cross-cutting domain types: the error taxonomy and
// the acting principal. Domain packages return *Error values so transports
// and the idempotency guard can act on the kind without string matching.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and transport mapping.
type Kind int

const (
	// KindValidation: malformed or out-of-range input. Not retryable.
	KindValidation Kind = iota + 1
	// KindNotFound: the referenced entity does not exist.
	KindNotFound
	// KindConflict: business-rule violation (invalid state/transition,
	// duplicate reservation). Not retried automatically.
	KindConflict
	// KindExhausted: insufficient funds or stock. Caller may retry after
	// acquiring more of the resource.
	KindExhausted
	// KindPermission: the principal lacks the required capability.
	KindPermission
	// KindTransient: infrastructure trouble (lock timeout, store down).
	// Safe to retry with backoff; never cached by the idempotency guard.
	KindTransient
)

// Stable error codes surfaced to callers.
const (
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidQuantity      = "INVALID_QUANTITY"
	CodeEmptyItems           = "EMPTY_ITEMS"
	CodeMissingAddress       = "MISSING_ADDRESS"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeProductNotFound      = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodeReservationNotFound  = "RESERVATION_NOT_FOUND"
	CodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeDuplicateReservation = "DUPLICATE_RESERVATION"
	CodeReservationExpired   = "RESERVATION_EXPIRED"
	CodeInvalidState         = "INVALID_STATE"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeDuplicateRequest     = "DUPLICATE_REQUEST"
	CodeLockTimeout          = "LOCK_TIMEOUT"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
)

// Error is a kind-tagged domain error with a stable code and a
// human-readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// E builds a domain error.
func E(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Ef builds a domain error with a formatted message.
func Ef(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err. Unknown errors are treated as
// transient: they come from infrastructure, must roll back the enclosing
// transaction and must never be cached as a final answer.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// CodeOf extracts the stable code from err, or "" for non-domain errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
