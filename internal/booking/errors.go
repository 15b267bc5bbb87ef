package booking

import (
	"errors"
	"fmt"

	"bookingpro/internal/models"
)

// ErrNotFound is returned when a booking or resource does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a malformed request before any lock is taken.
// Never retried automatically.
type ValidationError struct {
	ResourceID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for resource %s: %s", e.ResourceID, e.Reason)
}

// UnavailableError reports an overlap with an existing pending or
// confirmed booking. Terminal for the request; the caller must pick a
// different interval or resource.
type UnavailableError struct {
	ResourceID string
	Interval   models.Interval
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("resource %s unavailable for [%s, %s)",
		e.ResourceID, e.Interval.Start.Format("2006-01-02 15:04"), e.Interval.End.Format("2006-01-02 15:04"))
}

// InvalidTransitionError reports a state machine violation. Logged and
// surfaced, not retried.
type InvalidTransitionError struct {
	BookingID string
	From      models.BookingStatus
	To        models.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %s: invalid transition %s -> %s", e.BookingID, e.From, e.To)
}

// IsUnavailable reports whether err is an overlap rejection.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsValidation reports whether err is a precondition failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is a lifecycle violation.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
