// Package notify delivers operator alerts. Delivery is fire and forget:
// a failed alert is logged and dropped, never allowed to block or fail
// the booking path that raised it.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers one message to a channel (Telegram, log, ...).
type Sender interface {
	Send(ctx context.Context, message string) error
}

// Dispatcher fans alerts out to senders under a shared rate limit and a
// concurrency cap.
type Dispatcher struct {
	senders []Sender
	limiter *rate.Limiter
	sem     chan struct{}
	timeout time.Duration

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// Options tunes the dispatcher. Zero values fall back to defaults.
type Options struct {
	RatePerSecond float64
	Burst         int
	MaxConcurrent int
	SendTimeout   time.Duration
}

// NewDispatcher builds a dispatcher over the given senders.
func NewDispatcher(senders []Sender, opts Options, logger *zerolog.Logger) *Dispatcher {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		senders: senders,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		sem:     make(chan struct{}, opts.MaxConcurrent),
		timeout: opts.SendTimeout,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Notify queues the message for delivery to every sender and returns
// immediately.
func (d *Dispatcher) Notify(message string) {
	for _, sender := range d.senders {
		d.wg.Add(1)
		go d.deliver(sender, message)
	}
}

func (d *Dispatcher) deliver(sender Sender, message string) {
	defer d.wg.Done()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.logger.Error().Err(err).Msg("alert dropped waiting for rate limit")
		return
	}
	if err := sender.Send(ctx, message); err != nil {
		d.logger.Error().Err(err).Msg("alert delivery failed")
	}
}

// Flush waits for all queued deliveries to finish. Used on shutdown and
// in tests.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}
