package booking

import (
	"errors"
	"fmt"
)

// Kind buckets domain errors for transport mapping.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindPolicy      Kind = "policy"
	KindUnavailable Kind = "unavailable"
)

// Stable machine-readable codes surfaced to API clients.
const (
	CodeSlotAlreadyTaken           = "SLOT_ALREADY_TAKEN"
	CodeSlotUnavailable            = "SLOT_UNAVAILABLE"
	CodeNonWorkingDay              = "NON_WORKING_DAY"
	CodeRescheduleLimitExceeded    = "RESCHEDULE_LIMIT_EXCEEDED"
	CodeNotReschedulable           = "NOT_RESCHEDULABLE"
	CodeInsufficientLeadTime       = "INSUFFICIENT_LEAD_TIME"
	CodeAppointmentNotFound        = "APPOINTMENT_NOT_FOUND"
	CodeInvalidTransition          = "INVALID_TRANSITION"
	CodeCancellationReasonRequired = "CANCELLATION_REASON_REQUIRED"
	CodePaymentIntentNotFound      = "PAYMENT_INTENT_NOT_FOUND"
	CodePaymentIntentAlreadyClosed = "PAYMENT_INTENT_ALREADY_CLOSED"
	CodePaymentIntentStillPending  = "PAYMENT_INTENT_STILL_PENDING"
)

// Error is the domain error carried across package boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func WrapError(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf extracts the error kind; unknown errors count as unavailable so
// internal failures never masquerade as client mistakes.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnavailable
}

func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Store-level sentinels. The storage layer translates driver errors into
// these; the service layer wraps them with domain context.
var (
	ErrOverlap  = errors.New("time range already taken")
	ErrNotFound = errors.New("not found")
	ErrStale    = errors.New("stale state")
)
