package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookingpro/internal/booking"
	"bookingpro/internal/database"
	"bookingpro/internal/locks"
	"bookingpro/internal/models"
	"bookingpro/internal/payments"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "valid-key"

type stubService struct {
	lastCreate  booking.CreateRequest
	lastConfirm booking.PaymentOutcome
	lastCancel  string
	err         error
	available   bool
}

func (s *stubService) CreateBooking(_ context.Context, req booking.CreateRequest) (*models.Booking, error) {
	s.lastCreate = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Booking{
		ID: "b1", ResourceID: req.ResourceID, Start: req.Start, End: req.End,
		Guests: req.Guests, Status: models.StatusPending,
		TotalPrice: models.Money{Amount: 30000, Currency: "USD"},
	}, nil
}

func (s *stubService) ConfirmBooking(_ context.Context, id string, outcome booking.PaymentOutcome) (*models.Booking, error) {
	s.lastConfirm = outcome
	if s.err != nil {
		return nil, s.err
	}
	return &models.Booking{ID: id, Status: models.StatusConfirmed}, nil
}

func (s *stubService) CancelBooking(_ context.Context, id, reason string) (*models.Booking, error) {
	s.lastCancel = reason
	if s.err != nil {
		return nil, s.err
	}
	return &models.Booking{ID: id, Status: models.StatusCancelled, CancelReason: reason}, nil
}

func (s *stubService) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Booking{ID: id, Status: models.StatusPending}, nil
}

func (s *stubService) GetAvailability(_ context.Context, _ string, _, _ time.Time) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.available, nil
}

type stubResources struct {
	kind models.ResourceKind
}

func (s *stubResources) GetResource(_ context.Context, id string) (*models.Resource, error) {
	return &models.Resource{ID: id, Kind: s.kind, IsActive: true}, nil
}

type stubReports struct {
	summary *database.Summary
}

func (s *stubReports) GetSummary(_ context.Context, _ string, _, _ time.Time) (*database.Summary, error) {
	return s.summary, nil
}

type stubPayments struct {
	lastIntent  string
	lastOutcome payments.CallbackOutcome
	err         error
}

func (s *stubPayments) HandleCallback(_ context.Context, intentRef string, outcome payments.CallbackOutcome) error {
	s.lastIntent = intentRef
	s.lastOutcome = outcome
	return s.err
}

type apiEnv struct {
	svc       *stubService
	resources *stubResources
	payments  *stubPayments
	server    *httptest.Server
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	svc := &stubService{available: true}
	resources := &stubResources{kind: models.KindRoom}
	reports := &stubReports{summary: &database.Summary{Unreconciled: 2}}
	payments := &stubPayments{}
	logger := zerolog.Nop()
	hs := NewHTTPServer(Config{APIKey: testAPIKey, TableSeating: 90 * time.Minute},
		svc, resources, reports, &logger)
	hs.BindPayments(payments)

	srv := httptest.NewServer(hs.Handler())
	t.Cleanup(srv.Close)
	return &apiEnv{svc: svc, resources: resources, payments: payments, server: srv}
}

func doRequest(t *testing.T, method, url string, body any, key string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIKeyRequired(t *testing.T) {
	env := setupAPI(t)

	resp := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/bookings/b1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.server.URL+"/api/v1/bookings/b1", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.server.URL+"/api/v1/bookings/b1", nil, testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateBookingEndpoint(t *testing.T) {
	start := time.Now().UTC().AddDate(0, 0, 7).Truncate(time.Hour)

	t.Run("room booking", func(t *testing.T) {
		env := setupAPI(t)
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings", CreateBookingRequest{
			ResourceID: "room-101",
			Requester:  "guest@example.com",
			Start:      start.Format(time.RFC3339),
			End:        start.AddDate(0, 0, 2).Format(time.RFC3339),
			Guests:     2,
		}, testAPIKey)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var b models.Booking
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
		assert.Equal(t, models.StatusPending, b.Status)
	})

	t.Run("table booking defaults end to seating duration", func(t *testing.T) {
		env := setupAPI(t)
		env.resources.kind = models.KindTable

		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings", CreateBookingRequest{
			ResourceID: "table-5",
			Requester:  "guest@example.com",
			Start:      start.Format(time.RFC3339),
			Guests:     4,
		}, testAPIKey)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, 90*time.Minute, env.svc.lastCreate.End.Sub(env.svc.lastCreate.Start))
	})

	t.Run("room booking without end is rejected", func(t *testing.T) {
		env := setupAPI(t)
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings", CreateBookingRequest{
			ResourceID: "room-101",
			Requester:  "guest@example.com",
			Start:      start.Format(time.RFC3339),
			Guests:     1,
		}, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("validation errors", func(t *testing.T) {
		env := setupAPI(t)
		tests := []struct {
			name string
			body any
		}{
			{"missing fields", map[string]string{}},
			{"bad start", map[string]any{"resource_id": "r", "requester": "g", "start": "yesterday", "guests": 1}},
			{"unknown field", map[string]any{"resource_id": "r", "requester": "g", "start": start.Format(time.RFC3339), "surprise": true}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings", tt.body, testAPIKey)
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		}
	})
}

func TestErrorMapping(t *testing.T) {
	start := time.Now().UTC().AddDate(0, 0, 7)
	body := CreateBookingRequest{
		ResourceID: "room-101", Requester: "guest",
		Start: start.Format(time.RFC3339), End: start.AddDate(0, 0, 1).Format(time.RFC3339),
		Guests: 1,
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"overlap conflict", &booking.UnavailableError{ResourceID: "room-101"}, http.StatusConflict},
		{"validation", &booking.ValidationError{ResourceID: "room-101", Reason: "bad"}, http.StatusBadRequest},
		{"not found", booking.ErrNotFound, http.StatusNotFound},
		{"lock busy", locks.ErrBusy, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupAPI(t)
			env.svc.err = tt.err
			resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings", body, testAPIKey)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestConfirmBookingEndpoint(t *testing.T) {
	env := setupAPI(t)

	resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings/b1/confirm",
		ConfirmBookingRequest{Outcome: "success"}, testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, booking.OutcomeSuccess, env.svc.lastConfirm)

	t.Run("unknown outcome", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings/b1/confirm",
			ConfirmBookingRequest{Outcome: "maybe"}, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCancelBookingEndpoint(t *testing.T) {
	env := setupAPI(t)

	resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings/b1/cancel",
		CancelBookingRequest{Reason: "change of plans"}, testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "change of plans", env.svc.lastCancel)

	t.Run("empty body gets default reason", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/bookings/b1/cancel", nil, testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "requested", env.svc.lastCancel)
	})
}

func TestPaymentCallbackEndpoint(t *testing.T) {
	env := setupAPI(t)

	resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/payments/callback",
		PaymentCallbackRequest{IntentRef: "intent-42", Outcome: "success"}, testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "intent-42", env.payments.lastIntent)
	assert.Equal(t, payments.CallbackSuccess, env.payments.lastOutcome)

	t.Run("failure outcome", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/payments/callback",
			PaymentCallbackRequest{IntentRef: "intent-43", Outcome: "failure"}, testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, payments.CallbackFailure, env.payments.lastOutcome)
	})

	t.Run("refunded outcome", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/payments/callback",
			PaymentCallbackRequest{IntentRef: "intent-44", Outcome: "refunded"}, testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, payments.CallbackRefunded, env.payments.lastOutcome)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/payments/callback",
			PaymentCallbackRequest{IntentRef: "intent-45", Outcome: "maybe"}, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing intent ref", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/payments/callback",
			PaymentCallbackRequest{Outcome: "success"}, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unbound receiver", func(t *testing.T) {
		logger := zerolog.Nop()
		hs := NewHTTPServer(Config{APIKey: testAPIKey}, env.svc, env.resources,
			&stubReports{summary: &database.Summary{}}, &logger)
		srv := httptest.NewServer(hs.Handler())
		t.Cleanup(srv.Close)

		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/payments/callback",
			PaymentCallbackRequest{IntentRef: "intent-44", Outcome: "success"}, testAPIKey)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := setupAPI(t)
	start := time.Now().UTC().AddDate(0, 0, 7)

	url := env.server.URL + "/api/v1/availability?resource_id=room-101&start=" +
		start.Format(time.RFC3339) + "&end=" + start.AddDate(0, 0, 1).Format(time.RFC3339)
	resp := doRequest(t, http.MethodGet, url, nil, testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body AvailabilityResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Available)
	assert.Equal(t, "room-101", body.ResourceID)

	t.Run("missing params", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/availability", nil, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSummaryEndpoint(t *testing.T) {
	env := setupAPI(t)

	resp := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/reports/summary?business_id=hotel", nil, testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary database.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 2, summary.Unreconciled)

	t.Run("missing business id", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/reports/summary", nil, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
