// Package bootstrap inserts reference data on first start so a fresh
// deployment has businesses and resources to book against.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookingpro/internal/booking"
	"bookingpro/internal/config"
	"bookingpro/internal/models"

	"github.com/rs/zerolog"
)

// Store is the persistence the seeder writes through.
type Store interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	CreateBusiness(ctx context.Context, b *models.Business) error
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	CreateResource(ctx context.Context, r *models.Resource) error
}

// Seed inserts the configured businesses and resources. Existing IDs
// are left untouched, so the routine is safe to run on every start.
func Seed(ctx context.Context, store Store, businesses []config.SeedBusiness, logger *zerolog.Logger) error {
	log := logger.With().Str("component", "bootstrap").Logger()

	var created int
	for _, sb := range businesses {
		if sb.ID == "" || sb.Currency == "" {
			return fmt.Errorf("seed business needs id and currency, got %q/%q", sb.ID, sb.Currency)
		}

		_, err := store.GetBusiness(ctx, sb.ID)
		switch {
		case err == nil:
			// Already present.
		case errors.Is(err, sql.ErrNoRows):
			if err := store.CreateBusiness(ctx, &models.Business{
				ID:       sb.ID,
				Name:     sb.Name,
				Currency: sb.Currency,
				Timezone: sb.Timezone,
				PayLater: sb.PayLater,
				IsActive: true,
			}); err != nil {
				return err
			}
			created++
			log.Info().Str("business_id", sb.ID).Msg("seeded business")
		default:
			return fmt.Errorf("check business %s: %w", sb.ID, err)
		}

		for _, sr := range sb.Resources {
			if err := seedResource(ctx, store, sb.ID, sr, &log); err != nil {
				return err
			}
		}
	}

	if created > 0 {
		log.Info().Int("businesses", created).Msg("bootstrap seed finished")
	}
	return nil
}

// Creator is the booking path demo reservations go through.
type Creator interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*models.Booking, error)
}

// SeedBookings creates demo reservations through the regular booking
// path, so seeding can never bypass availability or pricing rules. A
// slot already taken by an earlier run is skipped; nothing here stops
// startup.
func SeedBookings(ctx context.Context, svc Creator, bookings []config.SeedBooking, logger *zerolog.Logger) {
	log := logger.With().Str("component", "bootstrap").Logger()

	for _, sb := range bookings {
		if sb.ResourceID == "" || sb.Requester == "" {
			log.Warn().Str("resource_id", sb.ResourceID).Msg("demo booking needs resource_id and requester, skipping")
			continue
		}

		start := time.Now().UTC().AddDate(0, 0, sb.StartInDays).Truncate(time.Hour)
		duration := time.Duration(sb.DurationHours) * time.Hour
		if duration <= 0 {
			duration = 24 * time.Hour
		}
		guests := sb.Guests
		if guests <= 0 {
			guests = 1
		}

		b, err := svc.CreateBooking(ctx, booking.CreateRequest{
			ResourceID: sb.ResourceID,
			Requester:  sb.Requester,
			Start:      start,
			End:        start.Add(duration),
			Guests:     guests,
			Notes:      sb.Notes,
		})
		switch {
		case err == nil:
			log.Info().Str("booking_id", b.ID).Str("resource_id", sb.ResourceID).Msg("seeded demo booking")
		case booking.IsUnavailable(err):
			log.Debug().Str("resource_id", sb.ResourceID).Msg("demo slot already taken")
		default:
			log.Warn().Err(err).Str("resource_id", sb.ResourceID).Msg("demo booking rejected")
		}
	}
}

func seedResource(ctx context.Context, store Store, businessID string, sr config.SeedResource, log *zerolog.Logger) error {
	kind := models.ResourceKind(sr.Kind)
	if !kind.Valid() {
		return fmt.Errorf("seed resource %s: unknown kind %q", sr.ID, sr.Kind)
	}

	_, err := store.GetResource(ctx, sr.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check resource %s: %w", sr.ID, err)
	}

	rate, err := models.ParseAmount(sr.Rate)
	if err != nil {
		return fmt.Errorf("seed resource %s: %w", sr.ID, err)
	}
	capacity := sr.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	if err := store.CreateResource(ctx, &models.Resource{
		ID:         sr.ID,
		BusinessID: businessID,
		Kind:       kind,
		Name:       sr.Name,
		Capacity:   capacity,
		RateMinor:  rate,
		PayLater:   sr.PayLater,
		IsActive:   true,
	}); err != nil {
		return err
	}
	log.Info().Str("resource_id", sr.ID).Str("kind", sr.Kind).Msg("seeded resource")
	return nil
}
