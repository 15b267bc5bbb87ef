package booking

import "bookingpro/internal/models"

// transitions is the closed set of allowed status moves. Cancelled and
// completed are terminal.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled},
	models.StatusCancelled: {},
	models.StatusCompleted: {},
}

// CanTransition checks if moving a booking from one status to another is
// allowed by the lifecycle state machine.
func CanTransition(from, to models.BookingStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
