// Package models defines the reservation engine's domain records.
package models

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Occupying reports whether a booking in this status blocks its interval
// in the availability index.
func (s BookingStatus) Occupying() bool {
	return s == StatusPending || s == StatusConfirmed
}

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// ResourceKind distinguishes the two bookable variants.
type ResourceKind string

const (
	KindRoom  ResourceKind = "room"
	KindTable ResourceKind = "table"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	return k == KindRoom || k == KindTable
}

// Business owns resources and bookings. Reference data created by
// onboarding flows outside this engine.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Timezone  string    `json:"timezone"`
	PayLater  bool      `json:"pay_later"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Resource is a bookable unit: a room sliced by nights or a table seated
// for a single interval. Both occupy half-open [start, end) intervals.
type Resource struct {
	ID         string       `json:"id"`
	BusinessID string       `json:"business_id"`
	Kind       ResourceKind `json:"kind"`
	Name       string       `json:"name"`
	Capacity   int          `json:"capacity"`
	// RateMinor is the nightly rate (rooms) or per-seating rate (tables)
	// in the business currency's minor units.
	RateMinor int64     `json:"rate_minor"`
	PayLater  bool      `json:"pay_later"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Booking is a reservation of a resource for an interval.
type Booking struct {
	ID           string        `json:"id"`
	BusinessID   string        `json:"business_id"`
	ResourceID   string        `json:"resource_id"`
	Requester    string        `json:"requester"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Guests       int           `json:"guests"`
	TotalPrice   Money         `json:"total_price"`
	Status       BookingStatus `json:"status"`
	Notes        string        `json:"notes"`
	CancelReason string        `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	// Version is a monotonic counter for optimistic-concurrency callers
	// that read-then-write outside the resource lock.
	Version int64 `json:"version"`
}

// Interval returns the booking's occupancy interval.
func (b *Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Payment tracks the gateway settlement state for one booking (1:1).
type Payment struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id"`
	Amount    Money         `json:"amount"`
	Status    PaymentStatus `json:"status"`
	IntentRef string        `json:"intent_ref,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Money is an amount in a currency's minor units (cents for decimal
// currencies). Arithmetic stays integral; rounding happens only when
// parsing decimal input.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// String formats the amount with two minor digits, e.g. "150.00 USD".
func (m Money) String() string {
	sign := ""
	amt := m.Amount
	if amt < 0 {
		sign = "-"
		amt = -amt
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amt/100, amt%100, m.Currency)
}

// ParseAmount converts a decimal string like "150" or "149.995" to minor
// units, rounding half-up to two decimal places.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	var whole int64
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		whole = whole*10 + int64(r-'0')
	}
	minor := whole * 100
	if fracPart != "" {
		for _, r := range fracPart {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("invalid amount %q", s)
			}
		}
		// Pad/truncate to three digits so the third drives half-up rounding.
		frac := fracPart + "000"
		cents := int64(frac[0]-'0')*10 + int64(frac[1]-'0')
		if frac[2] >= '5' {
			cents++
		}
		minor += cents
	}
	if neg {
		minor = -minor
	}
	return minor, nil
}
