package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bookingpro/internal/models"
)

// ErrVersionConflict is returned when an optimistic status update loses
// against a concurrent writer.
var ErrVersionConflict = fmt.Errorf("booking version conflict")

// CreateBooking inserts a new booking row.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO bookings (
			id, business_id, resource_id, requester, start_time, end_time,
			guests, total_minor, currency, status, notes, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BusinessID, b.ResourceID, b.Requester, b.Start, b.End,
		b.Guests, b.TotalPrice.Amount, b.TotalPrice.Currency, string(b.Status),
		b.Notes, b.CreatedAt, b.UpdatedAt, b.Version,
	)
	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}
	return nil
}

// GetBooking returns a booking by ID, or sql.ErrNoRows.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, business_id, resource_id, requester, start_time, end_time,
		       guests, total_minor, currency, status, notes, cancel_reason,
		       created_at, updated_at, version
		FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

// UpdateBookingStatusWithVersion transitions the booking status only if
// the caller's version is current, bumping the counter on success.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status models.BookingStatus, reason string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, cancel_reason = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(status), reason, time.Now().UTC(), id, version,
	)
	if err != nil {
		return fmt.Errorf("update booking %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListOccupyingBookings returns all pending and confirmed bookings,
// used to rebuild the availability index at startup.
func (db *DB) ListOccupyingBookings(ctx context.Context) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, business_id, resource_id, requester, start_time, end_time,
		       guests, total_minor, currency, status, notes, cancel_reason,
		       created_at, updated_at, version
		FROM bookings
		WHERE status IN ('pending', 'confirmed')
		ORDER BY resource_id, start_time`)
}

// ListBookingsByResource returns all bookings for a resource, newest first.
func (db *DB) ListBookingsByResource(ctx context.Context, resourceID string) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, business_id, resource_id, requester, start_time, end_time,
		       guests, total_minor, currency, status, notes, cancel_reason,
		       created_at, updated_at, version
		FROM bookings
		WHERE resource_id = ?
		ORDER BY created_at DESC`, resourceID)
}

// ListOverlapping returns occupying bookings on the resource whose
// interval intersects [start, end), ordered by creation time then ID so
// race winners are deterministic.
func (db *DB) ListOverlapping(ctx context.Context, resourceID string, ival models.Interval) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT id, business_id, resource_id, requester, start_time, end_time,
		       guests, total_minor, currency, status, notes, cancel_reason,
		       created_at, updated_at, version
		FROM bookings
		WHERE resource_id = ?
		AND start_time < ? AND end_time > ?
		AND status IN ('pending', 'confirmed')
		ORDER BY created_at, id`,
		resourceID, ival.End, ival.Start)
}

// CountOverlapping counts occupying bookings on the resource whose
// interval intersects [start, end) under half-open semantics.
func (db *DB) CountOverlapping(ctx context.Context, resourceID string, ival models.Interval) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE resource_id = ?
		AND start_time < ? AND end_time > ?
		AND status IN ('pending', 'confirmed')`,
		resourceID, ival.End, ival.Start,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count overlapping on %s: %w", resourceID, err)
	}
	return count, nil
}

// DeleteBooking removes a booking row. Administrative use only; normal
// lifecycle never deletes, cancellation is a terminal state.
func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id)
	return err
}

// DeleteOldTerminalBookings removes cancelled and completed bookings
// older than the retention window. Returns the number deleted.
func (db *DB) DeleteOldTerminalBookings(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := db.ExecContext(ctx, `
		DELETE FROM bookings
		WHERE status IN ('cancelled', 'completed') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old bookings: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	var notes, cancelReason sql.NullString
	err := row.Scan(
		&b.ID, &b.BusinessID, &b.ResourceID, &b.Requester, &b.Start, &b.End,
		&b.Guests, &b.TotalPrice.Amount, &b.TotalPrice.Currency, &status,
		&notes, &cancelReason, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	if notes.Valid {
		b.Notes = notes.String
	}
	if cancelReason.Valid {
		b.CancelReason = cancelReason.String
	}
	return &b, nil
}
