// Package payments tracks settlement state per booking and keeps it
// consistent with the booking lifecycle. Disagreements the engine cannot
// resolve are queued for operators, never silently dropped.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bookingpro/internal/models"

	"github.com/google/uuid"
)

// Gateway is the payment provider the engine settles against.
type Gateway interface {
	// CreateIntent registers an amount to collect and returns the
	// provider's intent reference.
	CreateIntent(ctx context.Context, bookingID string, amount models.Money) (string, error)
	// Refund returns the collected amount for an intent.
	Refund(ctx context.Context, intentRef string) error
}

// HTTPGateway talks to an external payment provider over JSON/HTTP.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGateway constructs a gateway client with baseURL and API key.
func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type intentRequest struct {
	BookingID   string `json:"booking_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type intentResponse struct {
	IntentRef string `json:"intent_ref"`
	Error     string `json:"error,omitempty"`
}

// CreateIntent posts the amount in minor units; the provider never sees
// fractional values.
func (g *HTTPGateway) CreateIntent(ctx context.Context, bookingID string, amount models.Money) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/intents", g.baseURL)
	body := intentRequest{BookingID: bookingID, AmountMinor: amount.Amount, Currency: amount.Currency}

	var resp intentResponse
	if err := g.doPost(ctx, endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("create intent for booking %s: %w", bookingID, err)
	}
	if resp.IntentRef == "" {
		return "", fmt.Errorf("create intent for booking %s: %s", bookingID, resp.Error)
	}
	return resp.IntentRef, nil
}

// Refund asks the provider to return the collected amount.
func (g *HTTPGateway) Refund(ctx context.Context, intentRef string) error {
	endpoint := fmt.Sprintf("%s/v1/intents/%s/refund", g.baseURL, url.PathEscape(intentRef))
	if err := g.doPost(ctx, endpoint, struct{}{}, nil); err != nil {
		return fmt.Errorf("refund intent %s: %w", intentRef, err)
	}
	return nil
}

func (g *HTTPGateway) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("x-api-key", g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// LocalGateway is an in-process provider for development and tests. It
// accepts every intent and remembers refunds.
type LocalGateway struct {
	mu       sync.Mutex
	intents  map[string]models.Money
	refunded map[string]bool

	// FailRefunds makes Refund return an error, exercising the
	// reconciliation error path.
	FailRefunds bool
}

// NewLocalGateway constructs an empty in-process gateway.
func NewLocalGateway() *LocalGateway {
	return &LocalGateway{
		intents:  make(map[string]models.Money),
		refunded: make(map[string]bool),
	}
}

func (g *LocalGateway) CreateIntent(_ context.Context, bookingID string, amount models.Money) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := "local-" + uuid.New().String()
	g.intents[ref] = amount
	return ref, nil
}

func (g *LocalGateway) Refund(_ context.Context, intentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailRefunds {
		return fmt.Errorf("refund intent %s: provider unavailable", intentRef)
	}
	if _, ok := g.intents[intentRef]; !ok {
		return fmt.Errorf("refund intent %s: unknown intent", intentRef)
	}
	g.refunded[intentRef] = true
	return nil
}

// Refunded reports whether the intent was refunded.
func (g *LocalGateway) Refunded(intentRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[intentRef]
}
