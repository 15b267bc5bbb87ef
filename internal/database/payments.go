package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bookingpro/internal/models"
)

// CreatePayment inserts a payment record for a booking.
func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, booking_id, amount_minor, currency, status, intent_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BookingID, p.Amount.Amount, p.Amount.Currency, string(p.Status), p.IntentRef,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment for booking %s: %w", p.BookingID, err)
	}
	return nil
}

// GetPaymentByBooking returns the payment attached to a booking, or
// sql.ErrNoRows.
func (db *DB) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, booking_id, amount_minor, currency, status, intent_ref, created_at, updated_at
		FROM payments WHERE booking_id = ?`, bookingID)
	return scanPayment(row)
}

// GetPaymentByIntent resolves a gateway callback's intent reference.
func (db *DB) GetPaymentByIntent(ctx context.Context, intentRef string) (*models.Payment, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, booking_id, amount_minor, currency, status, intent_ref, created_at, updated_at
		FROM payments WHERE intent_ref = ?`, intentRef)
	return scanPayment(row)
}

// UpdatePaymentStatus moves a payment to a new settlement state.
func (db *DB) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	res, err := db.ExecContext(ctx,
		"UPDATE payments SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetPaymentIntent records the gateway intent reference once obtained.
func (db *DB) SetPaymentIntent(ctx context.Context, id, intentRef string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE payments SET intent_ref = ?, updated_at = ? WHERE id = ?",
		intentRef, time.Now().UTC(), id)
	return err
}

// RecordReconciliationError appends a payment/status disagreement to
// the operator queue. Never auto-resolved.
func (db *DB) RecordReconciliationError(ctx context.Context, bookingID string, paymentStatus models.PaymentStatus, bookingStatus models.BookingStatus, detail string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reconciliation_errors (booking_id, payment_status, booking_status, detail)
		VALUES (?, ?, ?, ?)`,
		bookingID, string(paymentStatus), string(bookingStatus), detail)
	if err != nil {
		return fmt.Errorf("record reconciliation error for %s: %w", bookingID, err)
	}
	return nil
}

// CountUnresolvedReconciliationErrors reports the operator queue depth.
func (db *DB) CountUnresolvedReconciliationErrors(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reconciliation_errors WHERE resolved = 0").Scan(&count)
	return count, err
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var status string
	var intentRef sql.NullString
	err := row.Scan(&p.ID, &p.BookingID, &p.Amount.Amount, &p.Amount.Currency,
		&status, &intentRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	if intentRef.Valid {
		p.IntentRef = intentRef.String
	}
	return &p, nil
}
