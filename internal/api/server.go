// Package api exposes the reservation engine over JSON/HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookingpro/internal/booking"
	"bookingpro/internal/database"
	"bookingpro/internal/locks"
	"bookingpro/internal/models"
	"bookingpro/internal/payments"

	"github.com/rs/zerolog"
)

// BookingService is the lifecycle manager behind the handlers.
type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID string, outcome booking.PaymentOutcome) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, reason string) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetAvailability(ctx context.Context, resourceID string, start, end time.Time) (bool, error)
}

// ResourceSource resolves resource metadata for request defaulting.
type ResourceSource interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
}

// ReportStore serves the summary endpoint.
type ReportStore interface {
	GetSummary(ctx context.Context, businessID string, from, to time.Time) (*database.Summary, error)
}

// PaymentCallbacks receives asynchronous gateway notifications.
type PaymentCallbacks interface {
	HandleCallback(ctx context.Context, intentRef string, outcome payments.CallbackOutcome) error
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	svc      BookingService
	catalog  ResourceSource
	reports  ReportStore
	payments PaymentCallbacks

	apiKey string
	// tableSeating is the implied duration for table bookings that omit
	// an end time.
	tableSeating time.Duration

	server *http.Server
	logger zerolog.Logger
}

// Config tunes the HTTP server.
type Config struct {
	Port         int
	APIKey       string
	TableSeating time.Duration
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(cfg Config, svc BookingService, catalog ResourceSource, reports ReportStore, logger *zerolog.Logger) *HTTPServer {
	if cfg.TableSeating <= 0 {
		cfg.TableSeating = 90 * time.Minute
	}
	s := &HTTPServer{
		svc:          svc,
		catalog:      catalog,
		reports:      reports,
		apiKey:       cfg.APIKey,
		tableSeating: cfg.TableSeating,
		logger:       logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bookings", s.requireKey(s.handleCreateBooking))
	mux.HandleFunc("GET /api/v1/bookings/{id}", s.requireKey(s.handleGetBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", s.requireKey(s.handleConfirmBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", s.requireKey(s.handleCancelBooking))
	mux.HandleFunc("GET /api/v1/availability", s.requireKey(s.handleAvailability))
	mux.HandleFunc("GET /api/v1/reports/summary", s.requireKey(s.handleSummary))
	mux.HandleFunc("POST /api/v1/payments/callback", s.requireKey(s.handlePaymentCallback))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// BindPayments attaches the gateway callback receiver. Callbacks
// arriving while unbound are rejected with 503.
func (s *HTTPServer) BindPayments(cb PaymentCallbacks) {
	s.payments = cb
}

// Handler returns the route tree, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until the listener closes.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps lifecycle errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case booking.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case booking.IsUnavailable(err):
		writeError(w, http.StatusConflict, err.Error())
	case booking.IsInvalidTransition(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, locks.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "resource busy, retry later")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
