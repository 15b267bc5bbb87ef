package database

import (
	"context"
	"time"
)

// StatusCount pairs a booking status with its count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// RevenueRow is confirmed/completed revenue per currency.
type RevenueRow struct {
	Currency   string `json:"currency"`
	TotalMinor int64  `json:"total_minor"`
	Bookings   int    `json:"bookings"`
}

// Summary is a read-only projection over the booking store. It is
// derived data; the bookings table stays the single source of truth.
type Summary struct {
	StatusCounts []StatusCount `json:"status_counts"`
	Revenue      []RevenueRow  `json:"revenue"`
	Unreconciled int           `json:"unreconciled"`
}

// GetSummary computes status counts and realized revenue for a business
// within [from, to).
func (db *DB) GetSummary(ctx context.Context, businessID string, from, to time.Time) (*Summary, error) {
	s := &Summary{}

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM bookings
		WHERE business_id = ? AND start_time >= ? AND start_time < ?
		GROUP BY status ORDER BY status`,
		businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		s.StatusCounts = append(s.StatusCounts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	revRows, err := db.QueryContext(ctx, `
		SELECT currency, COALESCE(SUM(total_minor), 0), COUNT(*)
		FROM bookings
		WHERE business_id = ? AND start_time >= ? AND start_time < ?
		AND status IN ('confirmed', 'completed')
		GROUP BY currency ORDER BY currency`,
		businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer revRows.Close()
	for revRows.Next() {
		var r RevenueRow
		if err := revRows.Scan(&r.Currency, &r.TotalMinor, &r.Bookings); err != nil {
			return nil, err
		}
		s.Revenue = append(s.Revenue, r)
	}
	if err := revRows.Err(); err != nil {
		return nil, err
	}

	unresolved, err := db.CountUnresolvedReconciliationErrors(ctx)
	if err != nil {
		return nil, err
	}
	s.Unreconciled = unresolved
	return s, nil
}

// ListCompletableBookings returns confirmed bookings whose interval has
// fully elapsed, candidates for automatic closeout.
func (db *DB) ListCompletableBookings(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM bookings
		WHERE status = 'confirmed' AND end_time <= ?
		ORDER BY end_time`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
