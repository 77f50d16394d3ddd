package billing

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PlanFox/app/models"
)

const (
	paymentStatusPaid              = "paid"
	paymentStatusNoPaymentRequired = "no_payment_required"
)

// Metadata keys declared on the checkout session by the storefront.
const (
	metaDurationDays = "duration_days"
	metaQuantity     = "quantity"
	metaEmail        = "email"
	metaName         = "name"
	metaCustomerName = "customer_name"
	metaCurrency     = "currency"
	metaUserID       = "user_id"
	metaOrderRef     = "order_ref"
)

type rawEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// checkoutSessionObject is the subset of a Checkout Session both the webhook
// and the REST lookup read.
type checkoutSessionObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

type paymentIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// NormalizeEventType maps gateway event names onto the closed set the
// processor acts on. Anything else is EventUnknown and acknowledged untouched.
func NormalizeEventType(gatewayType string) EventType {
	switch strings.ToLower(strings.TrimSpace(gatewayType)) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return EventCheckoutCompleted
	case "payment_intent.succeeded":
		return EventPaymentSucceeded
	case "payment_intent.payment_failed", "checkout.session.async_payment_failed":
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

// ParseWebhookEvent decodes an already verified delivery. Unknown event types
// parse successfully with an empty payload.
func ParseWebhookEvent(raw []byte, defaultDurationDays int) (*PaymentEvent, error) {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, ErrMalformedPayload
	}
	if strings.TrimSpace(ev.ID) == "" || strings.TrimSpace(ev.Type) == "" {
		return nil, ErrMalformedPayload
	}

	out := &PaymentEvent{
		ID:          strings.TrimSpace(ev.ID),
		Type:        NormalizeEventType(ev.Type),
		GatewayType: strings.TrimSpace(ev.Type),
	}
	if ev.Created > 0 {
		out.CreatedAt = time.Unix(ev.Created, 0).UTC()
	}

	if out.Type == EventUnknown {
		return out, nil
	}
	if len(ev.Data.Object) == 0 {
		return nil, ErrMalformedPayload
	}

	if strings.HasPrefix(out.GatewayType, "checkout.session.") {
		var session checkoutSessionObject
		if err := json.Unmarshal(ev.Data.Object, &session); err != nil {
			return nil, ErrMalformedPayload
		}
		payload := payloadFromSession(session, defaultDurationDays)
		if payload.SessionID == "" {
			return nil, ErrMalformedPayload
		}
		if out.GatewayType == "checkout.session.async_payment_succeeded" && payload.PaymentStatus == "" {
			payload.PaymentStatus = paymentStatusPaid
		}
		out.Payload = payload
		return out, nil
	}

	var pi paymentIntentObject
	if err := json.Unmarshal(ev.Data.Object, &pi); err != nil || strings.TrimSpace(pi.ID) == "" {
		return nil, ErrMalformedPayload
	}
	out.Payload = EventPayload{
		PaymentIntentID: strings.TrimSpace(pi.ID),
		PaymentStatus:   pi.Status,
		AmountTotal:     pi.Amount,
		Currency:        models.NormalizeCurrency(pi.Currency),
		Email:           strings.TrimSpace(pi.Metadata[metaEmail]),
		OrderRef:        strings.TrimSpace(pi.Metadata[metaOrderRef]),
	}
	if pi.LastPaymentError != nil {
		out.Payload.FailureMessage = pi.LastPaymentError.Message
	}
	return out, nil
}

func payloadFromSession(s checkoutSessionObject, defaultDurationDays int) EventPayload {
	meta := s.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	email := strings.TrimSpace(meta[metaEmail])
	name := firstNonEmpty(meta[metaName], meta[metaCustomerName])
	if s.CustomerDetails != nil {
		email = firstNonEmpty(email, s.CustomerDetails.Email)
		name = firstNonEmpty(name, s.CustomerDetails.Name)
	}
	email = firstNonEmpty(email, s.CustomerEmail)

	currency := firstNonEmpty(s.Currency, meta[metaCurrency])

	orderRef := firstNonEmpty(meta[metaOrderRef], s.ClientReferenceID)

	userID := parseUint(meta[metaUserID])
	if userID == 0 {
		userID = parseUint(s.ClientReferenceID)
	}

	duration := parsePositiveInt(meta[metaDurationDays])
	if duration == 0 {
		duration = parsePositiveInt(meta[metaQuantity])
	}
	if duration == 0 {
		duration = defaultDurationDays
	}

	return EventPayload{
		SessionID:       strings.TrimSpace(s.ID),
		PaymentIntentID: paymentIntentID(s.PaymentIntent),
		PaymentStatus:   strings.ToLower(strings.TrimSpace(s.PaymentStatus)),
		AmountTotal:     s.AmountTotal,
		Currency:        models.NormalizeCurrency(currency),
		DurationDays:    duration,
		Email:           email,
		CustomerName:    name,
		UserID:          userID,
		OrderRef:        orderRef,
	}
}

// paymentIntentID accepts both the collapsed ("pi_123") and the expanded
// ({"id":"pi_123",...}) representation.
func paymentIntentID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func parseUint(raw string) uint {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func parsePositiveInt(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
