// Package pricing derives the charge for a reservation. Price is a pure
// function of resource, interval and guest count.
package pricing

import (
	"fmt"

	"bookingpro/internal/models"
)

// Price computes the total charge in the business currency's minor
// units. Rooms are billed per night with partial nights rounded up;
// tables are billed a flat per-seating rate regardless of duration.
func Price(resource *models.Resource, ival models.Interval, guests int, currency string) (models.Money, error) {
	if err := ival.Validate(); err != nil {
		return models.Money{}, err
	}
	if guests <= 0 {
		return models.Money{}, fmt.Errorf("guests must be positive")
	}

	switch resource.Kind {
	case models.KindRoom:
		nights := int64(ival.Nights())
		return models.Money{Amount: nights * resource.RateMinor, Currency: currency}, nil
	case models.KindTable:
		return models.Money{Amount: resource.RateMinor, Currency: currency}, nil
	default:
		return models.Money{}, fmt.Errorf("unknown resource kind %q", resource.Kind)
	}
}
