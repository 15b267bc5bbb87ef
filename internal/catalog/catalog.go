// Package catalog serves resource and business reference data. Reads
// dominate; an optional Redis read-through cache fronts the store and
// is invalidated whenever a resource mutates.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookingpro/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for unknown resource or business IDs.
var ErrNotFound = errors.New("catalog: not found")

// Store is the persistence behind the catalog.
type Store interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	DeactivateResource(ctx context.Context, id string) error
}

// Catalog answers resource lookups for the engine.
type Catalog struct {
	store Store

	redis    *redis.Client
	cacheTTL time.Duration
}

// New constructs a catalog over the store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// UseRedisCache enables read-through caching of lookups.
func (c *Catalog) UseRedisCache(client *redis.Client, ttl time.Duration) {
	c.redis = client
	c.cacheTTL = ttl
}

// GetResource returns the resource or ErrNotFound.
func (c *Catalog) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	cacheKey := "resource:" + id
	var cached models.Resource
	if c.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	r, err := c.store.GetResource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, err)
	}
	c.writeCache(ctx, cacheKey, r)
	return r, nil
}

// GetBusiness returns the owning business or ErrNotFound.
func (c *Catalog) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	cacheKey := "business:" + id
	var cached models.Business
	if c.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	b, err := c.store.GetBusiness(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business %s: %w", id, err)
	}
	c.writeCache(ctx, cacheKey, b)
	return b, nil
}

// IsActive reports whether the resource accepts new bookings.
func (c *Catalog) IsActive(resource *models.Resource) bool {
	return resource != nil && resource.IsActive
}

// PayLater reports whether confirmation may precede payment for this
// resource: a resource-level flag with a business-level fallback.
func (c *Catalog) PayLater(ctx context.Context, resource *models.Resource) (bool, error) {
	if resource.PayLater {
		return true, nil
	}
	business, err := c.GetBusiness(ctx, resource.BusinessID)
	if err != nil {
		return false, err
	}
	return business.PayLater, nil
}

// Deactivate marks the resource inactive and drops its cache entry so
// stale availability never outlives the mutation.
func (c *Catalog) Deactivate(ctx context.Context, id string) error {
	if err := c.store.DeactivateResource(ctx, id); err != nil {
		return fmt.Errorf("deactivate resource %s: %w", id, err)
	}
	c.Invalidate(ctx, id)
	return nil
}

// Invalidate removes the cached entry for a resource.
func (c *Catalog) Invalidate(ctx context.Context, resourceID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, "resource:"+resourceID).Err()
}

func (c *Catalog) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Catalog) writeCache(ctx context.Context, key string, v any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}
