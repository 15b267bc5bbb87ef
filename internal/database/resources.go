package database

import (
	"context"
	"fmt"
	"time"

	"bookingpro/internal/models"
)

// CreateBusiness inserts a business record.
func (db *DB) CreateBusiness(ctx context.Context, b *models.Business) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, currency, timezone, pay_later, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Currency, b.Timezone, b.PayLater, b.IsActive, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert business %s: %w", b.ID, err)
	}
	return nil
}

// GetBusiness returns a business by ID, or sql.ErrNoRows.
func (db *DB) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	err := db.QueryRowContext(ctx, `
		SELECT id, name, currency, timezone, pay_later, is_active, created_at
		FROM businesses WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Currency, &b.Timezone, &b.PayLater, &b.IsActive, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateResource inserts a resource record.
func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO resources (id, business_id, kind, name, capacity, rate_minor, pay_later, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BusinessID, string(r.Kind), r.Name, r.Capacity, r.RateMinor, r.PayLater, r.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert resource %s: %w", r.ID, err)
	}
	return nil
}

// GetResource returns a resource by ID, or sql.ErrNoRows.
func (db *DB) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	var r models.Resource
	var kind string
	err := db.QueryRowContext(ctx, `
		SELECT id, business_id, kind, name, capacity, rate_minor, pay_later, is_active, created_at, updated_at
		FROM resources WHERE id = ?`, id,
	).Scan(&r.ID, &r.BusinessID, &kind, &r.Name, &r.Capacity, &r.RateMinor, &r.PayLater, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = models.ResourceKind(kind)
	return &r, nil
}

// ListActiveResources returns active resources for a business.
func (db *DB) ListActiveResources(ctx context.Context, businessID string) ([]models.Resource, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, business_id, kind, name, capacity, rate_minor, pay_later, is_active, created_at, updated_at
		FROM resources WHERE business_id = ? AND is_active = 1
		ORDER BY name`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var r models.Resource
		var kind string
		if err := rows.Scan(&r.ID, &r.BusinessID, &kind, &r.Name, &r.Capacity, &r.RateMinor,
			&r.PayLater, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Kind = models.ResourceKind(kind)
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// DeactivateResource marks a resource inactive. Callers must invalidate
// any cached availability for the resource afterwards.
func (db *DB) DeactivateResource(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE resources SET is_active = 0, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	return err
}
