// Package availability maintains the per-resource interval index used
// for overlap queries. Only pending and confirmed bookings occupy the
// index; cancelled intervals are removed synchronously with the state
// transition, never lazily swept.
package availability

import (
	"context"
	"sort"
	"sync"

	"bookingpro/internal/models"
)

// Entry is one occupied interval on a resource.
type Entry struct {
	Interval  models.Interval
	BookingID string
	Status    models.BookingStatus
}

// BookingLister supplies occupying bookings for the startup rebuild.
type BookingLister interface {
	ListOccupyingBookings(ctx context.Context) ([]models.Booking, error)
}

// Index answers overlap queries per resource. Entries are kept ordered
// by interval start.
type Index struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewIndex constructs an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string][]Entry)}
}

// Load rebuilds the index from the booking store. Called once at
// process start before the engine serves traffic.
func (ix *Index) Load(ctx context.Context, store BookingLister) error {
	bookings, err := store.ListOccupyingBookings(ctx)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string][]Entry)
	for _, b := range bookings {
		ix.insertLocked(b.ResourceID, Entry{
			Interval:  b.Interval(),
			BookingID: b.ID,
			Status:    b.Status,
		})
	}
	return nil
}

// Overlaps reports whether any occupying booking on the resource
// intersects ival under half-open semantics.
func (ix *Index) Overlaps(resourceID string, ival models.Interval) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, e := range ix.entries[resourceID] {
		if !e.Interval.Start.Before(ival.End) {
			break // entries are start-ordered; nothing later can overlap
		}
		if e.Interval.Overlaps(ival) {
			return true
		}
	}
	return false
}

// Conflicting returns the entries on the resource that intersect ival.
func (ix *Index) Conflicting(resourceID string, ival models.Interval) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Entry
	for _, e := range ix.entries[resourceID] {
		if !e.Interval.Start.Before(ival.End) {
			break
		}
		if e.Interval.Overlaps(ival) {
			out = append(out, e)
		}
	}
	return out
}

// Insert adds an occupied interval for the booking.
func (ix *Index) Insert(resourceID string, ival models.Interval, bookingID string, status models.BookingStatus) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(resourceID, Entry{Interval: ival, BookingID: bookingID, Status: status})
}

func (ix *Index) insertLocked(resourceID string, e Entry) {
	list := ix.entries[resourceID]
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].Interval.Start.Before(e.Interval.Start)
	})
	list = append(list, Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	ix.entries[resourceID] = list
}

// Remove deletes the booking's interval from the resource. A no-op if
// the booking is not indexed.
func (ix *Index) Remove(resourceID, bookingID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	list := ix.entries[resourceID]
	for i, e := range list {
		if e.BookingID == bookingID {
			ix.entries[resourceID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// UpdateStatus records a status change for an indexed booking.
func (ix *Index) UpdateStatus(resourceID, bookingID string, status models.BookingStatus) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	list := ix.entries[resourceID]
	for i := range list {
		if list[i].BookingID == bookingID {
			list[i].Status = status
			return
		}
	}
}

// Size returns the total number of indexed intervals.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := 0
	for _, list := range ix.entries {
		n += len(list)
	}
	return n
}
