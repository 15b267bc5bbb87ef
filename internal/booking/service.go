// Package booking implements the reservation lifecycle: overlap-checked
// creation, the status state machine, and race resolution on delayed
// confirmation callbacks.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookingpro/internal/availability"
	"bookingpro/internal/catalog"
	"bookingpro/internal/events"
	"bookingpro/internal/locks"
	"bookingpro/internal/metrics"
	"bookingpro/internal/models"
	"bookingpro/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Cancellation reasons set by the engine itself.
const (
	ReasonLostRace      = "lost_race"
	ReasonPaymentFailed = "payment_failed"
)

// PaymentOutcome is the gateway's verdict delivered with a confirmation.
type PaymentOutcome string

const (
	OutcomeSuccess PaymentOutcome = "success"
	OutcomeFailure PaymentOutcome = "failure"
)

// Repository is the persistence the lifecycle manager needs.
type Repository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status models.BookingStatus, reason string) error
	ListOverlapping(ctx context.Context, resourceID string, ival models.Interval) ([]models.Booking, error)
	ListCompletableBookings(ctx context.Context, now time.Time) ([]string, error)
}

// ResourceCatalog resolves reference data for validation and pricing.
type ResourceCatalog interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
}

// EventPublisher feeds the reconciliation coordinator and notifier.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// EventPayload is the JSON body of booking lifecycle events.
type EventPayload struct {
	Booking models.Booking `json:"booking"`
	Reason  string         `json:"reason,omitempty"`
}

// event is a lifecycle notification queued while the resource lock is
// held. Subscribers run synchronously and may do slow gateway I/O, so
// delivery waits until the lock is released.
type event struct {
	kind    string
	booking models.Booking
	reason  string
}

// CreateRequest is the input to CreateBooking.
type CreateRequest struct {
	ResourceID string
	Requester  string
	Start      time.Time
	End        time.Time
	Guests     int
	Notes      string
}

// Service is the booking lifecycle manager.
type Service struct {
	repo       Repository
	catalog    ResourceCatalog
	index      *availability.Index
	locks      *locks.ResourceLocks
	bus        EventPublisher
	maxAdvance time.Duration
	logger     zerolog.Logger
}

// NewService wires the lifecycle manager.
func NewService(repo Repository, cat ResourceCatalog, index *availability.Index, rl *locks.ResourceLocks, bus EventPublisher, maxAdvance time.Duration, logger *zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		catalog:    cat,
		index:      index,
		locks:      rl,
		bus:        bus,
		maxAdvance: maxAdvance,
		logger:     logger.With().Str("component", "booking").Logger(),
	}
}

// CreateBooking validates the request, checks the availability index
// under the per-resource lock, prices the stay and persists a PENDING
// booking. Validation failures happen before any lock is taken.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	ival := models.Interval{Start: req.Start, End: req.End}
	if err := ival.Validate(); err != nil {
		metrics.IncRejected("validation")
		return nil, &ValidationError{ResourceID: req.ResourceID, Reason: err.Error()}
	}
	now := time.Now().UTC()
	if req.Start.Before(now) {
		metrics.IncRejected("validation")
		return nil, &ValidationError{ResourceID: req.ResourceID, Reason: "booking must start in the future"}
	}
	if s.maxAdvance > 0 && req.Start.After(now.Add(s.maxAdvance)) {
		metrics.IncRejected("validation")
		return nil, &ValidationError{ResourceID: req.ResourceID, Reason: "booking starts too far in the future"}
	}

	resource, err := s.catalog.GetResource(ctx, req.ResourceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("resource %s: %w", req.ResourceID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !resource.IsActive {
		metrics.IncRejected("validation")
		return nil, &ValidationError{ResourceID: req.ResourceID, Reason: "resource is inactive"}
	}
	if req.Guests <= 0 || req.Guests > resource.Capacity {
		metrics.IncRejected("validation")
		return nil, &ValidationError{
			ResourceID: req.ResourceID,
			Reason:     fmt.Sprintf("guests %d out of range 1..%d", req.Guests, resource.Capacity),
		}
	}

	business, err := s.catalog.GetBusiness(ctx, resource.BusinessID)
	if err != nil {
		return nil, err
	}

	// Deferred before the lock so events go out only after Release runs.
	var queued []event
	defer s.flush(&queued)

	if err := s.locks.Acquire(ctx, req.ResourceID); err != nil {
		if errors.Is(err, locks.ErrBusy) {
			metrics.IncLockBusy()
		}
		return nil, err
	}
	defer s.locks.Release(req.ResourceID)

	if s.index.Overlaps(req.ResourceID, ival) {
		metrics.IncRejected("unavailable")
		return nil, &UnavailableError{ResourceID: req.ResourceID, Interval: ival}
	}

	price, err := pricing.Price(resource, ival, req.Guests, business.Currency)
	if err != nil {
		return nil, fmt.Errorf("price booking: %w", err)
	}

	b := &models.Booking{
		ID:         uuid.New().String(),
		BusinessID: resource.BusinessID,
		ResourceID: resource.ID,
		Requester:  req.Requester,
		Start:      req.Start,
		End:        req.End,
		Guests:     req.Guests,
		TotalPrice: price,
		Status:     models.StatusPending,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	s.index.Insert(b.ResourceID, ival, b.ID, b.Status)
	metrics.IncBookingCreated(string(resource.Kind))
	metrics.SetIndexSize(s.index.Size())

	s.logger.Info().
		Str("booking_id", b.ID).
		Str("resource_id", b.ResourceID).
		Time("start", b.Start).
		Time("end", b.End).
		Str("price", price.String()).
		Msg("booking created")

	queued = append(queued, event{kind: events.TypeBookingCreated, booking: *b})
	return b, nil
}

// ConfirmBooking applies a gateway outcome to a PENDING booking. On
// success the overlap check is re-run under the resource lock: delayed
// callbacks must not trust the state captured at creation time. When a
// conflict exists the earlier-created booking wins, ties broken by the
// lexicographically smaller ID; the loser is force-cancelled.
func (s *Service) ConfirmBooking(ctx context.Context, bookingID string, outcome PaymentOutcome) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var queued []event
	defer s.flush(&queued)

	if err := s.locks.Acquire(ctx, b.ResourceID); err != nil {
		if errors.Is(err, locks.ErrBusy) {
			metrics.IncLockBusy()
		}
		return nil, err
	}
	defer s.locks.Release(b.ResourceID)

	// Re-read under the lock; the snapshot may be stale.
	b, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if outcome != OutcomeSuccess {
		return s.cancelLocked(ctx, b, ReasonPaymentFailed, &queued)
	}

	if b.Status != models.StatusPending {
		return nil, &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: models.StatusConfirmed}
	}

	// Second check on confirm: a competing booking may have committed
	// while the gateway callback was in flight.
	conflicts, err := s.repo.ListOverlapping(ctx, b.ResourceID, b.Interval())
	if err != nil {
		return nil, fmt.Errorf("recheck overlap: %w", err)
	}
	for _, other := range conflicts {
		if other.ID == b.ID {
			continue
		}
		if wins(&other, b) {
			s.logger.Warn().
				Str("booking_id", b.ID).
				Str("winner_id", other.ID).
				Str("resource_id", b.ResourceID).
				Msg("confirmation lost race, force-cancelling")
			return s.cancelLocked(ctx, b, ReasonLostRace, &queued)
		}
		// b wins; the later arrival is force-cancelled.
		if _, err := s.cancelLocked(ctx, &other, ReasonLostRace, &queued); err != nil {
			return nil, fmt.Errorf("cancel race loser %s: %w", other.ID, err)
		}
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusConfirmed, ""); err != nil {
		return nil, err
	}
	b.Status = models.StatusConfirmed
	b.Version++
	s.index.UpdateStatus(b.ResourceID, b.ID, models.StatusConfirmed)
	metrics.IncTransition(string(models.StatusConfirmed))

	s.logger.Info().Str("booking_id", b.ID).Msg("booking confirmed")
	queued = append(queued, event{kind: events.TypeBookingConfirmed, booking: *b})
	return b, nil
}

// CancelBooking moves a PENDING or CONFIRMED booking to CANCELLED and
// frees its interval immediately. Cancelling an already-cancelled
// booking is a no-op success.
func (s *Service) CancelBooking(ctx context.Context, bookingID, reason string) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusCancelled {
		return b, nil
	}

	var queued []event
	defer s.flush(&queued)

	if err := s.locks.Acquire(ctx, b.ResourceID); err != nil {
		if errors.Is(err, locks.ErrBusy) {
			metrics.IncLockBusy()
		}
		return nil, err
	}
	defer s.locks.Release(b.ResourceID)

	b, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.cancelLocked(ctx, b, reason, &queued)
}

// cancelLocked performs the cancellation under an already-held resource
// lock. Index removal is synchronous with the state transition so a
// cancelled booking never blocks the slot; the cancelled event is
// queued for delivery after the lock is released.
func (s *Service) cancelLocked(ctx context.Context, b *models.Booking, reason string, queued *[]event) (*models.Booking, error) {
	if b.Status == models.StatusCancelled {
		return b, nil
	}
	if !CanTransition(b.Status, models.StatusCancelled) {
		return nil, &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: models.StatusCancelled}
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled, reason); err != nil {
		return nil, err
	}
	b.Status = models.StatusCancelled
	b.CancelReason = reason
	b.Version++
	s.index.Remove(b.ResourceID, b.ID)
	metrics.IncTransition(string(models.StatusCancelled))
	metrics.SetIndexSize(s.index.Size())

	s.logger.Info().Str("booking_id", b.ID).Str("reason", reason).Msg("booking cancelled")
	*queued = append(*queued, event{kind: events.TypeBookingCancelled, booking: *b, reason: reason})
	return b, nil
}

// CompleteBooking closes out a CONFIRMED booking whose interval has
// fully elapsed. No availability effect.
func (s *Service) CompleteBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var queued []event
	defer s.flush(&queued)

	if err := s.locks.Acquire(ctx, b.ResourceID); err != nil {
		if errors.Is(err, locks.ErrBusy) {
			metrics.IncLockBusy()
		}
		return nil, err
	}
	defer s.locks.Release(b.ResourceID)

	b, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusConfirmed {
		return nil, &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: models.StatusCompleted}
	}
	if b.End.After(time.Now().UTC()) {
		return nil, &ValidationError{ResourceID: b.ResourceID, Reason: "booking interval has not elapsed yet"}
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCompleted, ""); err != nil {
		return nil, err
	}
	b.Status = models.StatusCompleted
	b.Version++
	s.index.Remove(b.ResourceID, b.ID)
	metrics.IncTransition(string(models.StatusCompleted))
	metrics.SetIndexSize(s.index.Size())

	s.logger.Info().Str("booking_id", b.ID).Msg("booking completed")
	queued = append(queued, event{kind: events.TypeBookingCompleted, booking: *b})
	return b, nil
}

// GetAvailability reports whether the resource is free for the interval.
func (s *Service) GetAvailability(ctx context.Context, resourceID string, start, end time.Time) (bool, error) {
	ival := models.Interval{Start: start, End: end}
	if err := ival.Validate(); err != nil {
		return false, &ValidationError{ResourceID: resourceID, Reason: err.Error()}
	}
	if _, err := s.catalog.GetResource(ctx, resourceID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return false, fmt.Errorf("resource %s: %w", resourceID, ErrNotFound)
		}
		return false, err
	}
	return !s.index.Overlaps(resourceID, ival), nil
}

// GetBooking returns a booking by ID.
func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.getBooking(ctx, id)
}

func (s *Service) getBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// flush publishes queued lifecycle events. Each lifecycle method defers
// flush before acquiring the resource lock, so deferred-call ordering
// guarantees the lock's Release runs first and subscribers never
// execute on the lock's critical section.
func (s *Service) flush(queued *[]event) {
	for _, e := range *queued {
		s.publish(e.kind, &e.booking, e.reason)
	}
}

func (s *Service) publish(eventType string, b *models.Booking, reason string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, EventPayload{Booking: *b, Reason: reason}); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("booking_id", b.ID).Msg("publish event failed")
	}
}

// wins reports whether a beats b in race resolution: earlier CreatedAt
// first, lexicographically smaller ID on equal timestamps.
func wins(a, b *models.Booking) bool {
	if a.CreatedAt.Before(b.CreatedAt) {
		return true
	}
	if b.CreatedAt.Before(a.CreatedAt) {
		return false
	}
	return a.ID < b.ID
}
