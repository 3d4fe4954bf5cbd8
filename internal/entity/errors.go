package entity

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service layer wraps exactly one of
// them, so callers can classify failures with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
)

// Error is a domain error carrying a human readable message and its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation builds an ad-hoc validation error.
func Validation(format string, args ...any) error {
	return newError(ErrValidation, fmt.Sprintf(format, args...))
}

var (
	// Inventory errors
	ErrCityExists      = newError(ErrConflict, "city already exists")
	ErrCityNotFound    = newError(ErrNotFound, "city not found")
	ErrUnknownCity     = newError(ErrValidation, "city does not exist")
	ErrAreaExists      = newError(ErrConflict, "area already exists in this city")
	ErrAreaNotFound    = newError(ErrNotFound, "area not found")
	ErrUnknownArea     = newError(ErrValidation, "area does not belong to city")
	ErrSlotExists      = newError(ErrConflict, "slot already exists")
	ErrSlotNotFound    = newError(ErrNotFound, "slot not found")
	ErrSlotOccupied    = newError(ErrConflict, "slot has an active booking")
	ErrInvalidStatus   = newError(ErrValidation, "invalid slot status")
	ErrMissingSlotData = newError(ErrValidation, "missing slot fields")

	// Booking errors
	ErrSlotUnavailable     = newError(ErrConflict, "slot unavailable")
	ErrActiveBookingExists = newError(ErrConflict, "you already have an active booking")
	ErrBookingNotFound     = newError(ErrNotFound, "booking not found")
	ErrBookingNotActive    = newError(ErrInvalidState, "booking is not active")
	ErrBookingNotExpired   = newError(ErrInvalidState, "booking has not expired")
	ErrInvalidTimeRange    = newError(ErrValidation, "end time must be after start time")
	ErrInvalidExtraHours   = newError(ErrValidation, "extra hours must be between 1 and 24")
	ErrReasonRequired      = newError(ErrValidation, "cancellation reason is required")
	ErrNotBookingOwner     = newError(ErrForbidden, "booking belongs to another user")

	// User errors
	ErrUserNotFound       = newError(ErrNotFound, "user not found")
	ErrUserAlreadyExists  = newError(ErrConflict, "user already exists")
	ErrInvalidCredentials = newError(ErrUnauthorized, "invalid email or password")
	ErrInvalidToken       = newError(ErrUnauthorized, "invalid or expired token")
	ErrMissingToken       = newError(ErrUnauthorized, "missing token")
	ErrAdminOnly          = newError(ErrForbidden, "admin only")

	// General errors
	ErrResourceBusy = newError(ErrConflict, "resource is busy, retry later")
)
