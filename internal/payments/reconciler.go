package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookingpro/internal/booking"
	"bookingpro/internal/events"
	"bookingpro/internal/metrics"
	"bookingpro/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the payment persistence the reconciler drives.
type Store interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error)
	GetPaymentByIntent(ctx context.Context, intentRef string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
	SetPaymentIntent(ctx context.Context, id, intentRef string) error
	RecordReconciliationError(ctx context.Context, bookingID string, paymentStatus models.PaymentStatus, bookingStatus models.BookingStatus, detail string) error
}

// CatalogSource resolves the pay-later policy for a booking's resource.
type CatalogSource interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	PayLater(ctx context.Context, resource *models.Resource) (bool, error)
}

// Notifier delivers operator alerts. Fire and forget.
type Notifier interface {
	Notify(message string)
}

// Confirmer applies a gateway outcome to a booking.
type Confirmer interface {
	ConfirmBooking(ctx context.Context, bookingID string, outcome booking.PaymentOutcome) (*models.Booking, error)
}

// CallbackOutcome is the gateway's verdict in an asynchronous callback.
// Refunded arrives when the gateway settles a refund after the refund
// request already returned.
type CallbackOutcome string

const (
	CallbackSuccess  CallbackOutcome = "success"
	CallbackFailure  CallbackOutcome = "failure"
	CallbackRefunded CallbackOutcome = "refunded"
)

// Reconciler keeps payment records aligned with booking lifecycle
// events. Gateway failures and state disagreements land in the
// reconciliation queue with an operator alert; the engine never guesses
// its way out of a money question.
type Reconciler struct {
	store     Store
	gateway   Gateway
	catalog   CatalogSource
	notifier  Notifier
	confirmer Confirmer
	bus       *events.Bus
	logger    zerolog.Logger
}

// RefundRequest is the payload of payment.refund_requested events,
// published when a cancellation sends a refund to the gateway.
type RefundRequest struct {
	BookingID string       `json:"booking_id"`
	PaymentID string       `json:"payment_id"`
	IntentRef string       `json:"intent_ref"`
	Amount    models.Money `json:"amount"`
}

// NewReconciler wires the payment coordinator.
func NewReconciler(store Store, gateway Gateway, catalog CatalogSource, notifier Notifier, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		gateway:  gateway,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger.With().Str("component", "payments").Logger(),
	}
}

// Register subscribes the reconciler to booking lifecycle events and
// keeps the bus for the events the reconciler publishes itself.
func (r *Reconciler) Register(bus *events.Bus) {
	r.bus = bus
	bus.Subscribe(events.TypeBookingCreated, r.onCreated)
	bus.Subscribe(events.TypeBookingConfirmed, r.onConfirmed)
	bus.Subscribe(events.TypeBookingCancelled, r.onCancelled)
}

// BindConfirmer attaches the booking side of gateway callbacks. Bound
// after construction because the reconciler and the lifecycle manager
// reference each other through the event bus.
func (r *Reconciler) BindConfirmer(c Confirmer) {
	r.confirmer = c
}

// HandleCallback resolves an asynchronous gateway notification by
// intent reference and drives the matching booking. Success and failure
// flow through the lifecycle manager so the slot, the booking row and
// the payment record move together; a refund acknowledgment settles the
// payment record directly, the booking was already cancelled when the
// refund was requested.
func (r *Reconciler) HandleCallback(ctx context.Context, intentRef string, outcome CallbackOutcome) error {
	p, err := r.store.GetPaymentByIntent(ctx, intentRef)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("unknown payment intent %q", intentRef)
	}
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("intent_ref", intentRef).
		Str("booking_id", p.BookingID).
		Str("outcome", string(outcome)).
		Msg("gateway callback")

	switch outcome {
	case CallbackSuccess, CallbackFailure:
		if r.confirmer == nil {
			return fmt.Errorf("no confirmer bound")
		}
		verdict := booking.OutcomeFailure
		if outcome == CallbackSuccess {
			verdict = booking.OutcomeSuccess
		}
		_, err = r.confirmer.ConfirmBooking(ctx, p.BookingID, verdict)
		return err
	case CallbackRefunded:
		return r.acknowledgeRefund(ctx, p)
	default:
		return fmt.Errorf("unknown callback outcome %q", outcome)
	}
}

// acknowledgeRefund marks a PAID payment REFUNDED on the gateway's ack.
// An ack for a payment that was never paid is a state disagreement and
// goes to the reconciliation queue.
func (r *Reconciler) acknowledgeRefund(ctx context.Context, p *models.Payment) error {
	switch p.Status {
	case models.PaymentRefunded:
		return nil
	case models.PaymentPaid:
		if err := r.store.UpdatePaymentStatus(ctx, p.ID, models.PaymentRefunded); err != nil {
			return err
		}
		r.logger.Info().Str("booking_id", p.BookingID).Str("intent_ref", p.IntentRef).Msg("refund acknowledged")
		return nil
	default:
		r.fail(ctx, p.BookingID, p.Status, models.StatusCancelled,
			"refund acknowledged for a payment that was never paid")
		return fmt.Errorf("refund ack for payment in status %s", p.Status)
	}
}

// onCreated opens a PENDING payment for the new booking and, unless the
// resource is pay-later, registers a collection intent with the gateway.
func (r *Reconciler) onCreated(event events.Event) error {
	var payload booking.EventPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	ctx := context.Background()
	b := payload.Booking

	now := time.Now().UTC()
	p := &models.Payment{
		ID:        uuid.New().String(),
		BookingID: b.ID,
		Amount:    b.TotalPrice,
		Status:    models.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreatePayment(ctx, p); err != nil {
		r.logger.Error().Err(err).Str("booking_id", b.ID).Msg("create payment record")
		return err
	}

	payLater, err := r.payLater(ctx, b.ResourceID)
	if err != nil {
		r.logger.Error().Err(err).Str("booking_id", b.ID).Msg("resolve pay-later policy")
		return err
	}
	if payLater {
		r.logger.Info().Str("booking_id", b.ID).Msg("pay-later booking, intent deferred")
		return nil
	}

	ref, err := r.gateway.CreateIntent(ctx, b.ID, b.TotalPrice)
	if err != nil {
		r.fail(ctx, b.ID, models.PaymentPending, b.Status, fmt.Sprintf("create intent: %v", err))
		return err
	}
	if err := r.store.SetPaymentIntent(ctx, p.ID, ref); err != nil {
		r.logger.Error().Err(err).Str("payment_id", p.ID).Msg("store intent reference")
		return err
	}
	r.logger.Info().Str("booking_id", b.ID).Str("intent_ref", ref).Msg("payment intent created")
	return nil
}

// onConfirmed marks the payment PAID. A confirmation without a prior
// intent is valid only under pay-later; the payment then stays PENDING
// until the business collects out of band.
func (r *Reconciler) onConfirmed(event events.Event) error {
	var payload booking.EventPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	ctx := context.Background()
	b := payload.Booking

	p, err := r.store.GetPaymentByBooking(ctx, b.ID)
	if errors.Is(err, sql.ErrNoRows) {
		r.fail(ctx, b.ID, models.PaymentPending, b.Status, "confirmed booking has no payment record")
		return err
	}
	if err != nil {
		return err
	}

	if p.IntentRef == "" {
		payLater, plErr := r.payLater(ctx, b.ResourceID)
		if plErr == nil && payLater {
			return nil
		}
		r.fail(ctx, b.ID, p.Status, b.Status, "confirmed booking has no payment intent")
		return fmt.Errorf("booking %s confirmed without intent", b.ID)
	}

	if p.Status == models.PaymentFailed || p.Status == models.PaymentRefunded {
		r.fail(ctx, b.ID, p.Status, b.Status, "confirmed booking with settled-away payment")
		return fmt.Errorf("booking %s confirmed with payment %s", b.ID, p.Status)
	}
	if p.Status == models.PaymentPaid {
		return nil
	}

	if err := r.store.UpdatePaymentStatus(ctx, p.ID, models.PaymentPaid); err != nil {
		return err
	}
	r.logger.Info().Str("booking_id", b.ID).Msg("payment marked paid")
	return nil
}

// onCancelled settles the payment side of a cancellation. A PAID
// payment becomes REFUNDED only after the gateway acknowledges the
// refund; a gateway failure leaves it PAID and queues the disagreement.
func (r *Reconciler) onCancelled(event events.Event) error {
	var payload booking.EventPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	ctx := context.Background()
	b := payload.Booking

	p, err := r.store.GetPaymentByBooking(ctx, b.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	switch p.Status {
	case models.PaymentPending:
		// Nothing was collected; void the record.
		if err := r.store.UpdatePaymentStatus(ctx, p.ID, models.PaymentFailed); err != nil {
			return err
		}
		r.logger.Info().Str("booking_id", b.ID).Str("reason", payload.Reason).Msg("pending payment voided")
		return nil
	case models.PaymentPaid:
		if p.IntentRef == "" {
			r.fail(ctx, b.ID, p.Status, b.Status, "paid payment has no intent to refund")
			return fmt.Errorf("booking %s paid without intent", b.ID)
		}
		if r.bus != nil {
			_ = r.bus.PublishJSON(events.TypeRefundRequested, RefundRequest{
				BookingID: b.ID,
				PaymentID: p.ID,
				IntentRef: p.IntentRef,
				Amount:    p.Amount,
			})
		}
		if err := r.gateway.Refund(ctx, p.IntentRef); err != nil {
			r.fail(ctx, b.ID, p.Status, b.Status, fmt.Sprintf("refund failed: %v", err))
			return err
		}
		if err := r.store.UpdatePaymentStatus(ctx, p.ID, models.PaymentRefunded); err != nil {
			return err
		}
		r.logger.Info().Str("booking_id", b.ID).Str("intent_ref", p.IntentRef).Msg("payment refunded")
		return nil
	default:
		return nil
	}
}

func (r *Reconciler) payLater(ctx context.Context, resourceID string) (bool, error) {
	resource, err := r.catalog.GetResource(ctx, resourceID)
	if err != nil {
		return false, err
	}
	return r.catalog.PayLater(ctx, resource)
}

// fail queues a reconciliation error for operator review and raises an
// alert. Queue writes that themselves fail are logged; the alert still
// goes out.
func (r *Reconciler) fail(ctx context.Context, bookingID string, paymentStatus models.PaymentStatus, bookingStatus models.BookingStatus, detail string) {
	metrics.IncReconciliationError()
	r.logger.Error().
		Str("booking_id", bookingID).
		Str("payment_status", string(paymentStatus)).
		Str("booking_status", string(bookingStatus)).
		Str("detail", detail).
		Msg("reconciliation error")

	if err := r.store.RecordReconciliationError(ctx, bookingID, paymentStatus, bookingStatus, detail); err != nil {
		r.logger.Error().Err(err).Str("booking_id", bookingID).Msg("record reconciliation error")
	}
	if r.notifier != nil {
		r.notifier.Notify(fmt.Sprintf(
			"Reconciliation error on booking %s: payment %s, booking %s. %s",
			bookingID, paymentStatus, bookingStatus, detail))
	}
}
