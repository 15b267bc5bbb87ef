package api

import (
	"encoding/json"
	"net/http"
	"time"

	"bookingpro/internal/booking"
	"bookingpro/internal/metrics"
	"bookingpro/internal/models"
	"bookingpro/internal/payments"
)

// CreateBookingRequest is the body of POST /api/v1/bookings. Times are
// RFC 3339. Table bookings may omit end; the configured seating
// duration is applied.
type CreateBookingRequest struct {
	ResourceID string `json:"resource_id"`
	Requester  string `json:"requester"`
	Start      string `json:"start"`
	End        string `json:"end,omitempty"`
	Guests     int    `json:"guests"`
	Notes      string `json:"notes,omitempty"`
}

// ConfirmBookingRequest is the body of POST /api/v1/bookings/{id}/confirm.
type ConfirmBookingRequest struct {
	Outcome string `json:"outcome"`
}

// CancelBookingRequest is the body of POST /api/v1/bookings/{id}/cancel.
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentCallbackRequest is the body of POST /api/v1/payments/callback,
// the shape the gateway posts back after settling an intent.
type PaymentCallbackRequest struct {
	IntentRef string `json:"intent_ref"`
	Outcome   string `json:"outcome"`
}

// AvailabilityResponse is the body of GET /api/v1/availability.
type AvailabilityResponse struct {
	ResourceID string `json:"resource_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Available  bool   `json:"available"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req CreateBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ResourceID == "" || req.Requester == "" || req.Start == "" {
		writeError(w, http.StatusBadRequest, "resource_id, requester and start are required")
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC 3339")
		return
	}

	var end time.Time
	if req.End != "" {
		end, err = time.Parse(time.RFC3339, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end; expected RFC 3339")
			return
		}
	} else {
		end, err = s.defaultEnd(r, req.ResourceID, start)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if end.IsZero() {
			writeError(w, http.StatusBadRequest, "end is required for room bookings")
			return
		}
	}

	b, err := s.svc.CreateBooking(r.Context(), booking.CreateRequest{
		ResourceID: req.ResourceID,
		Requester:  req.Requester,
		Start:      start,
		End:        end,
		Guests:     req.Guests,
		Notes:      req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// defaultEnd resolves an omitted end time. Only table bookings have an
// implied duration.
func (s *HTTPServer) defaultEnd(r *http.Request, resourceID string, start time.Time) (time.Time, error) {
	resource, err := s.catalog.GetResource(r.Context(), resourceID)
	if err != nil {
		return time.Time{}, err
	}
	if resource.Kind != models.KindTable {
		return time.Time{}, nil
	}
	return start.Add(s.tableSeating), nil
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")

	b, err := s.svc.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm_booking")

	var req ConfirmBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var outcome booking.PaymentOutcome
	switch req.Outcome {
	case "success":
		outcome = booking.OutcomeSuccess
	case "failure":
		outcome = booking.OutcomeFailure
	default:
		writeError(w, http.StatusBadRequest, "outcome must be success or failure")
		return
	}

	b, err := s.svc.ConfirmBooking(r.Context(), r.PathValue("id"), outcome)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")

	var req CancelBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "requested"
	}

	b, err := s.svc.CancelBooking(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_callback")

	if s.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payment callbacks not configured")
		return
	}

	var req PaymentCallbackRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IntentRef == "" {
		writeError(w, http.StatusBadRequest, "intent_ref is required")
		return
	}

	var outcome payments.CallbackOutcome
	switch req.Outcome {
	case "success":
		outcome = payments.CallbackSuccess
	case "failure":
		outcome = payments.CallbackFailure
	case "refunded":
		outcome = payments.CallbackRefunded
	default:
		writeError(w, http.StatusBadRequest, "outcome must be success, failure or refunded")
		return
	}

	if err := s.payments.HandleCallback(r.Context(), req.IntentRef, outcome); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	q := r.URL.Query()
	resourceID := q.Get("resource_id")
	if resourceID == "" {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC 3339")
		return
	}

	available, err := s.svc.GetAvailability(r.Context(), resourceID, start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ResourceID: resourceID,
		Start:      start.UTC().Format(time.RFC3339),
		End:        end.UTC().Format(time.RFC3339),
		Available:  available,
	})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("summary")

	q := r.URL.Query()
	businessID := q.Get("business_id")
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "business_id is required")
		return
	}

	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now.AddDate(0, 1, 0)
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from; expected RFC 3339")
			return
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to; expected RFC 3339")
			return
		}
		to = parsed
	}

	summary, err := s.reports.GetSummary(r.Context(), businessID, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
