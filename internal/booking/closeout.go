package booking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Closeout walks confirmed bookings whose interval has elapsed and
// completes them. Best-effort; a booking missed in one sweep is picked
// up by the next.
type Closeout struct {
	svc      *Service
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewCloseout builds the background completer.
func NewCloseout(svc *Service, interval time.Duration, logger *zerolog.Logger) *Closeout {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Closeout{
		svc:      svc,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger.With().Str("component", "closeout").Logger(),
	}
}

// Start launches the sweep loop.
func (c *Closeout) Start() {
	c.wg.Add(1)
	go c.run()
	c.logger.Info().Dur("interval", c.interval).Msg("closeout loop started")
}

// Stop terminates the loop and waits for an in-flight sweep.
func (c *Closeout) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info().Msg("closeout loop stopped")
}

func (c *Closeout) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep(context.Background())
		}
	}
}

// Sweep completes every confirmed booking whose end time has passed.
func (c *Closeout) Sweep(ctx context.Context) {
	ids, err := c.svc.repo.ListCompletableBookings(ctx, time.Now().UTC())
	if err != nil {
		c.logger.Error().Err(err).Msg("list completable bookings")
		return
	}
	for _, id := range ids {
		if _, err := c.svc.CompleteBooking(ctx, id); err != nil {
			c.logger.Error().Err(err).Str("booking_id", id).Msg("complete booking")
		}
	}
	if len(ids) > 0 {
		c.logger.Info().Int("count", len(ids)).Msg("closeout sweep finished")
	}
}
