package notify

import (
	"fmt"

	"bookingpro/internal/booking"
	"bookingpro/internal/events"
)

// RegisterLifecycleAlerts subscribes the dispatcher to confirmation and
// cancellation events so operators hear about every settled booking.
// Pending bookings are deliberately quiet: they may still lose a race or
// fail payment, and the reconciler raises its own alerts for those.
func RegisterLifecycleAlerts(bus *events.Bus, d *Dispatcher) {
	bus.Subscribe(events.TypeBookingConfirmed, func(e events.Event) error {
		var payload booking.EventPayload
		if err := e.Decode(&payload); err != nil {
			return err
		}
		b := payload.Booking
		d.Notify(fmt.Sprintf("Booking %s confirmed: %s at %s, %s to %s, total %d %s",
			b.ID, b.Requester, b.ResourceID,
			b.Start.Format("2006-01-02 15:04"), b.End.Format("2006-01-02 15:04"),
			b.TotalPrice.Amount, b.TotalPrice.Currency))
		return nil
	})
	bus.Subscribe(events.TypeBookingCancelled, func(e events.Event) error {
		var payload booking.EventPayload
		if err := e.Decode(&payload); err != nil {
			return err
		}
		b := payload.Booking
		d.Notify(fmt.Sprintf("Booking %s cancelled (%s): %s at %s, %s to %s",
			b.ID, payload.Reason, b.Requester, b.ResourceID,
			b.Start.Format("2006-01-02 15:04"), b.End.Format("2006-01-02 15:04")))
		return nil
	})
}
