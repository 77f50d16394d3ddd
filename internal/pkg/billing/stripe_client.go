package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// CheckoutSessionFetcher looks up the authoritative state of a checkout session.
type CheckoutSessionFetcher interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*EventPayload, error)
}

// StripeClient is a minimal REST client for the Checkout Session lookups the
// payment verification endpoint performs.
type StripeClient struct {
	SecretKey           string
	APIBaseURL          string
	DefaultDurationDays int

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:           strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL:          strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		DefaultDurationDays: env.GetEnvInt("PLAN_DEFAULT_DURATION_DAYS", DefaultDurationDays),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetCheckoutSession fetches a session and normalizes it like a webhook payload.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*EventPayload, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, ErrMissingSessionID
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	baseURL := strings.TrimRight(c.APIBaseURL, "/")
	u, err := url.Parse(baseURL + "/checkout/sessions/" + url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("invalid STRIPE_API_BASE_URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	var session checkoutSessionObject
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, ErrSessionNotFound
	}

	payload := payloadFromSession(session, c.DefaultDurationDays)
	return &payload, nil
}
