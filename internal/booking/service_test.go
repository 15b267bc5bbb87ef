package booking

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"bookingpro/internal/availability"
	"bookingpro/internal/catalog"
	"bookingpro/internal/database"
	"bookingpro/internal/events"
	"bookingpro/internal/locks"
	"bookingpro/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bookings: make(map[string]models.Booking)}
}

func (r *fakeRepo) CreateBooking(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = *b
	return nil
}

func (r *fakeRepo) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := b
	return &out, nil
}

func (r *fakeRepo) UpdateBookingStatusWithVersion(_ context.Context, id string, version int64, status models.BookingStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Version != version {
		return database.ErrVersionConflict
	}
	b.Status = status
	b.CancelReason = reason
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	r.bookings[id] = b
	return nil
}

func (r *fakeRepo) ListOverlapping(_ context.Context, resourceID string, ival models.Interval) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.ResourceID == resourceID && b.Status.Occupying() && b.Interval().Overlaps(ival) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeRepo) ListCompletableBookings(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, b := range r.bookings {
		if b.Status == models.StatusConfirmed && !b.End.After(now) {
			ids = append(ids, b.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeCatalog struct {
	resources  map[string]*models.Resource
	businesses map[string]*models.Business
}

func (c *fakeCatalog) GetResource(_ context.Context, id string) (*models.Resource, error) {
	r, ok := c.resources[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return r, nil
}

func (c *fakeCatalog) GetBusiness(_ context.Context, id string) (*models.Business, error) {
	b, ok := c.businesses[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return b, nil
}

type eventSink struct {
	mu      sync.Mutex
	entries []struct {
		Type    string
		Payload EventPayload
	}
}

func (s *eventSink) PublishJSON(eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, struct {
		Type    string
		Payload EventPayload
	}{eventType, payload.(EventPayload)})
	return nil
}

func (s *eventSink) last() (string, EventPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[len(s.entries)-1]
	return e.Type, e.Payload
}

type testEnv struct {
	svc   *Service
	repo  *fakeRepo
	index *availability.Index
	sink  *eventSink
}

func fixtureCatalog() *fakeCatalog {
	return &fakeCatalog{
		resources: map[string]*models.Resource{
			"room-101": {
				ID: "room-101", BusinessID: "hotel", Kind: models.KindRoom,
				Capacity: 2, RateMinor: 15000, IsActive: true,
			},
			"table-5": {
				ID: "table-5", BusinessID: "bistro", Kind: models.KindTable,
				Capacity: 4, RateMinor: 2500, IsActive: true,
			},
			"room-closed": {
				ID: "room-closed", BusinessID: "hotel", Kind: models.KindRoom,
				Capacity: 2, RateMinor: 15000, IsActive: false,
			},
		},
		businesses: map[string]*models.Business{
			"hotel":  {ID: "hotel", Currency: "USD", IsActive: true},
			"bistro": {ID: "bistro", Currency: "EUR", IsActive: true},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	cat := fixtureCatalog()
	index := availability.NewIndex()
	sink := &eventSink{}
	logger := zerolog.Nop()
	svc := NewService(repo, cat, index, locks.New(time.Second), sink, 365*24*time.Hour, &logger)
	return &testEnv{svc: svc, repo: repo, index: index, sink: sink}
}

// inject seeds a booking directly into the store and index, bypassing
// CreateBooking, to set up states the public API would not admit.
func (e *testEnv) inject(t *testing.T, b models.Booking) models.Booking {
	t.Helper()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	require.NoError(t, e.repo.CreateBooking(context.Background(), &b))
	if b.Status.Occupying() {
		e.index.Insert(b.ResourceID, b.Interval(), b.ID, b.Status)
	}
	return b
}

func stay(daysFromNow, nights int) (time.Time, time.Time) {
	start := time.Now().UTC().AddDate(0, 0, daysFromNow).Truncate(time.Hour)
	return start, start.AddDate(0, 0, nights)
}

func TestCreateBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 3)

	b, err := env.svc.CreateBooking(ctx, CreateRequest{
		ResourceID: "room-101",
		Requester:  "guest@example.com",
		Start:      start,
		End:        end,
		Guests:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, "hotel", b.BusinessID)
	assert.Equal(t, models.Money{Amount: 45000, Currency: "USD"}, b.TotalPrice)
	assert.EqualValues(t, 1, b.Version)
	assert.True(t, env.index.Overlaps("room-101", b.Interval()))

	typ, payload := env.sink.last()
	assert.Equal(t, events.TypeBookingCreated, typ)
	assert.Equal(t, b.ID, payload.Booking.ID)
}

func TestCreateBookingOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 3)

	_, err := env.svc.CreateBooking(ctx, CreateRequest{
		ResourceID: "room-101", Requester: "first", Start: start, End: end, Guests: 1,
	})
	require.NoError(t, err)

	t.Run("overlapping interval rejected", func(t *testing.T) {
		_, err := env.svc.CreateBooking(ctx, CreateRequest{
			ResourceID: "room-101", Requester: "second",
			Start: start.AddDate(0, 0, 1), End: end.AddDate(0, 0, 1), Guests: 1,
		})
		assert.True(t, IsUnavailable(err))
	})

	t.Run("back to back is not an overlap", func(t *testing.T) {
		b, err := env.svc.CreateBooking(ctx, CreateRequest{
			ResourceID: "room-101", Requester: "second",
			Start: end, End: end.AddDate(0, 0, 2), Guests: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status)
	})

	t.Run("other resources unaffected", func(t *testing.T) {
		free, err := env.svc.GetAvailability(ctx, "table-5", start, end)
		require.NoError(t, err)
		assert.True(t, free)
	})
}

func TestCreateBookingConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 2)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.svc.CreateBooking(ctx, CreateRequest{
				ResourceID: "room-101", Requester: fmt.Sprintf("guest-%d", n),
				Start: start, End: end, Guests: 1,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case IsUnavailable(err):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent request may take the slot")
	assert.Equal(t, 1, lost)
}

// reentrantBus books the same resource again from inside the first
// booking's created event, the way a subscriber doing gateway I/O would
// hold up a competing caller. The nested create only succeeds when
// subscribers run after the resource lock is released.
type reentrantBus struct {
	svc  *Service
	errs []error
	done bool
}

func (b *reentrantBus) PublishJSON(eventType string, _ any) error {
	if b.done || eventType != events.TypeBookingCreated {
		return nil
	}
	b.done = true
	start, end := stay(14, 1)
	_, err := b.svc.CreateBooking(context.Background(), CreateRequest{
		ResourceID: "room-101", Requester: "second", Start: start, End: end, Guests: 1,
	})
	b.errs = append(b.errs, err)
	return nil
}

func TestEventSubscribersRunOutsideResourceLock(t *testing.T) {
	repo := newFakeRepo()
	index := availability.NewIndex()
	bus := &reentrantBus{}
	logger := zerolog.Nop()
	svc := NewService(repo, fixtureCatalog(), index, locks.New(100*time.Millisecond), bus, 365*24*time.Hour, &logger)
	bus.svc = svc

	start, end := stay(7, 1)
	_, err := svc.CreateBooking(context.Background(), CreateRequest{
		ResourceID: "room-101", Requester: "first", Start: start, End: end, Guests: 1,
	})
	require.NoError(t, err)
	require.Len(t, bus.errs, 1)
	assert.NoError(t, bus.errs[0], "a subscriber must never observe the resource lock still held")
}

func TestCreateBookingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 2)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"end not after start", CreateRequest{ResourceID: "room-101", Start: end, End: start, Guests: 1}},
		{"zero length interval", CreateRequest{ResourceID: "room-101", Start: start, End: start, Guests: 1}},
		{"start in the past", CreateRequest{ResourceID: "room-101", Start: start.AddDate(-1, 0, 0), End: end.AddDate(-1, 0, 0), Guests: 1}},
		{"too far in advance", CreateRequest{ResourceID: "room-101", Start: start.AddDate(2, 0, 0), End: end.AddDate(2, 0, 0), Guests: 1}},
		{"guests over capacity", CreateRequest{ResourceID: "room-101", Start: start, End: end, Guests: 3}},
		{"zero guests", CreateRequest{ResourceID: "room-101", Start: start, End: end, Guests: 0}},
		{"inactive resource", CreateRequest{ResourceID: "room-closed", Start: start, End: end, Guests: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateBooking(ctx, tt.req)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	t.Run("unknown resource", func(t *testing.T) {
		_, err := env.svc.CreateBooking(ctx, CreateRequest{
			ResourceID: "room-999", Start: start, End: end, Guests: 1,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConfirmBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 2)

	created, err := env.svc.CreateBooking(ctx, CreateRequest{
		ResourceID: "room-101", Requester: "guest", Start: start, End: end, Guests: 1,
	})
	require.NoError(t, err)

	b, err := env.svc.ConfirmBooking(ctx, created.ID, OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.EqualValues(t, 2, b.Version)
	assert.True(t, env.index.Overlaps("room-101", b.Interval()))

	typ, _ := env.sink.last()
	assert.Equal(t, events.TypeBookingConfirmed, typ)

	t.Run("confirming twice is rejected", func(t *testing.T) {
		_, err := env.svc.ConfirmBooking(ctx, created.ID, OutcomeSuccess)
		assert.True(t, IsInvalidTransition(err))
	})
}

func TestConfirmBookingPaymentFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 2)

	created, err := env.svc.CreateBooking(ctx, CreateRequest{
		ResourceID: "room-101", Requester: "guest", Start: start, End: end, Guests: 1,
	})
	require.NoError(t, err)

	b, err := env.svc.ConfirmBooking(ctx, created.ID, OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)
	assert.Equal(t, ReasonPaymentFailed, b.CancelReason)
	assert.False(t, env.index.Overlaps("room-101", b.Interval()), "failed booking must free the slot")
}

func TestConfirmBookingRace(t *testing.T) {
	// Two overlapping pending bookings can coexist only when the index
	// diverged from the store, e.g. across a crash between the store
	// write and the index insert. The confirm path must resolve the
	// conflict deterministically: earlier creation wins, ID breaks ties.
	ctx := context.Background()
	start, end := stay(7, 2)

	base := models.Booking{
		BusinessID: "hotel", ResourceID: "room-101", Start: start, End: end,
		Guests: 1, Status: models.StatusPending,
		TotalPrice: models.Money{Amount: 30000, Currency: "USD"},
	}

	t.Run("later booking loses on confirm", func(t *testing.T) {
		env := newTestEnv(t)
		earlier := base
		earlier.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
		earlier = env.inject(t, earlier)

		later := base
		later.CreatedAt = earlier.CreatedAt.Add(time.Minute)
		later = env.inject(t, later)

		got, err := env.svc.ConfirmBooking(ctx, later.ID, OutcomeSuccess)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
		assert.Equal(t, ReasonLostRace, got.CancelReason)

		stored, err := env.repo.GetBooking(ctx, earlier.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status, "winner stays pending until its own confirmation")
	})

	t.Run("earlier booking wins and evicts the later one", func(t *testing.T) {
		env := newTestEnv(t)
		earlier := base
		earlier.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
		earlier = env.inject(t, earlier)

		later := base
		later.CreatedAt = earlier.CreatedAt.Add(time.Minute)
		later = env.inject(t, later)

		got, err := env.svc.ConfirmBooking(ctx, earlier.ID, OutcomeSuccess)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)

		loser, err := env.repo.GetBooking(ctx, later.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, loser.Status)
		assert.Equal(t, ReasonLostRace, loser.CancelReason)
		assert.False(t, env.index.Overlaps("room-101", models.Interval{Start: start, End: end}) &&
			len(env.index.Conflicting("room-101", models.Interval{Start: start, End: end})) > 1,
			"only the winner may remain indexed")
	})

	t.Run("equal timestamps break on smaller id", func(t *testing.T) {
		env := newTestEnv(t)
		created := time.Now().UTC().Add(-time.Minute)

		a := base
		a.ID = "aaaa-0001"
		a.CreatedAt = created
		a = env.inject(t, a)

		b := base
		b.ID = "bbbb-0002"
		b.CreatedAt = created
		b = env.inject(t, b)

		got, err := env.svc.ConfirmBooking(ctx, b.ID, OutcomeSuccess)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
		assert.Equal(t, ReasonLostRace, got.CancelReason)

		winner, err := env.repo.GetBooking(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, winner.Status)
	})
}

func TestCancelBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 2)

	created, err := env.svc.CreateBooking(ctx, CreateRequest{
		ResourceID: "room-101", Requester: "guest", Start: start, End: end, Guests: 1,
	})
	require.NoError(t, err)

	b, err := env.svc.CancelBooking(ctx, created.ID, "guest request")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)
	assert.Equal(t, "guest request", b.CancelReason)

	t.Run("slot is free immediately", func(t *testing.T) {
		rebooked, err := env.svc.CreateBooking(ctx, CreateRequest{
			ResourceID: "room-101", Requester: "next guest", Start: start, End: end, Guests: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, rebooked.Status)
	})

	t.Run("cancelling again is a no-op", func(t *testing.T) {
		again, err := env.svc.CancelBooking(ctx, created.ID, "duplicate click")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, again.Status)
		assert.Equal(t, "guest request", again.CancelReason, "original reason is preserved")
	})

	t.Run("completed booking cannot be cancelled", func(t *testing.T) {
		done := env.inject(t, models.Booking{
			BusinessID: "hotel", ResourceID: "room-101",
			Start: start.AddDate(0, 0, 30), End: end.AddDate(0, 0, 30),
			Guests: 1, Status: models.StatusCompleted,
			CreatedAt: time.Now().UTC(),
		})
		_, err := env.svc.CancelBooking(ctx, done.ID, "too late")
		assert.True(t, IsInvalidTransition(err))
	})
}

func TestCompleteBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	elapsed := env.inject(t, models.Booking{
		BusinessID: "hotel", ResourceID: "room-101",
		Start: now.Add(-48 * time.Hour), End: now.Add(-24 * time.Hour),
		Guests: 1, Status: models.StatusConfirmed,
		CreatedAt: now.Add(-72 * time.Hour),
	})

	b, err := env.svc.CompleteBooking(ctx, elapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)
	assert.False(t, env.index.Overlaps("room-101", elapsed.Interval()))

	t.Run("ongoing booking cannot complete", func(t *testing.T) {
		ongoing := env.inject(t, models.Booking{
			BusinessID: "hotel", ResourceID: "room-101",
			Start: now.Add(-time.Hour), End: now.Add(24 * time.Hour),
			Guests: 1, Status: models.StatusConfirmed,
			CreatedAt: now.Add(-2 * time.Hour),
		})
		_, err := env.svc.CompleteBooking(ctx, ongoing.ID)
		assert.True(t, IsValidation(err))
	})

	t.Run("pending booking cannot complete", func(t *testing.T) {
		pending := env.inject(t, models.Booking{
			BusinessID: "hotel", ResourceID: "table-5",
			Start: now.Add(-3 * time.Hour), End: now.Add(-time.Hour),
			Guests: 2, Status: models.StatusPending,
			CreatedAt: now.Add(-4 * time.Hour),
		})
		_, err := env.svc.CompleteBooking(ctx, pending.ID)
		assert.True(t, IsInvalidTransition(err))
	})
}

func TestCloseoutSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	elapsed := env.inject(t, models.Booking{
		BusinessID: "hotel", ResourceID: "room-101",
		Start: now.Add(-48 * time.Hour), End: now.Add(-24 * time.Hour),
		Guests: 1, Status: models.StatusConfirmed,
		CreatedAt: now.Add(-72 * time.Hour),
	})
	ongoing := env.inject(t, models.Booking{
		BusinessID: "hotel", ResourceID: "table-5",
		Start: now.Add(-time.Hour), End: now.Add(time.Hour),
		Guests: 2, Status: models.StatusConfirmed,
		CreatedAt: now.Add(-2 * time.Hour),
	})

	logger := zerolog.Nop()
	NewCloseout(env.svc, time.Minute, &logger).Sweep(ctx)

	done, err := env.repo.GetBooking(ctx, elapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	still, err := env.repo.GetBooking(ctx, ongoing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, still.Status)
}

func TestGetAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start, end := stay(7, 2)

	free, err := env.svc.GetAvailability(ctx, "room-101", start, end)
	require.NoError(t, err)
	assert.True(t, free)

	_, err = env.svc.CreateBooking(ctx, CreateRequest{
		ResourceID: "room-101", Requester: "guest", Start: start, End: end, Guests: 1,
	})
	require.NoError(t, err)

	free, err = env.svc.GetAvailability(ctx, "room-101", start, end)
	require.NoError(t, err)
	assert.False(t, free)

	t.Run("invalid interval", func(t *testing.T) {
		_, err := env.svc.GetAvailability(ctx, "room-101", end, start)
		assert.True(t, IsValidation(err))
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, err := env.svc.GetAvailability(ctx, "room-999", start, end)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
