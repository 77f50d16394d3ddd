package billing

import (
	"time"

	"github.com/ManuelReschke/PlanFox/app/models"
)

// EventType is the normalized, gateway-neutral webhook event discriminator.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout_completed"
	EventPaymentSucceeded  EventType = "payment_succeeded"
	EventPaymentFailed     EventType = "payment_failed"
	EventUnknown           EventType = "unknown"
)

// PaymentEvent is a verified webhook delivery translated into the shape the
// order processor understands.
type PaymentEvent struct {
	ID          string
	Type        EventType
	GatewayType string
	CreatedAt   time.Time
	Payload     EventPayload
}

// EventPayload carries the declared checkout metadata.
type EventPayload struct {
	SessionID       string
	PaymentIntentID string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	DurationDays    int
	Email           string
	CustomerName    string
	UserID          uint
	OrderRef        string
	FailureMessage  string
}

// IsPaid reports whether the gateway considers the checkout settled.
func (p EventPayload) IsPaid() bool {
	return p.PaymentStatus == paymentStatusPaid || p.PaymentStatus == paymentStatusNoPaymentRequired
}

// Confirmed turns a settled checkout payload into the immutable fact consumed
// by ProcessConfirmedPayment.
func (p EventPayload) Confirmed(at time.Time) PaymentConfirmed {
	return PaymentConfirmed{
		SessionID:        p.SessionID,
		PaymentIntentID:  p.PaymentIntentID,
		DeclaredOrderRef: p.OrderRef,
		UserID:           p.UserID,
		Email:            p.Email,
		CustomerName:     p.CustomerName,
		DurationDays:     p.DurationDays,
		Amount:           p.AmountTotal,
		Currency:         p.Currency,
		ConfirmedAt:      at.UTC(),
	}
}

// PaymentConfirmed is the immutable record of a settled payment. SessionID is
// the deduplication key: one session never yields two orders.
type PaymentConfirmed struct {
	SessionID        string
	PaymentIntentID  string
	DeclaredOrderRef string
	UserID           uint
	Email            string
	CustomerName     string
	DurationDays     int
	Amount           int64
	Currency         string
	ConfirmedAt      time.Time
}

// ProcessResult is the outcome of ProcessConfirmedPayment. Created is false on
// idempotent replays; Fulfillment is only set for newly created orders.
type ProcessResult struct {
	Plan        *models.UserPlan
	Created     bool
	Fulfillment *models.Fulfillment
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// WebhookResult describes how a delivery was handled, for the acknowledgment.
type WebhookResult struct {
	EventID   string
	Type      EventType
	Duplicate bool
	Ignored   bool
	PlanID    uint
	Created   bool
}

// SeedPlanInput is used by trusted internal actors to create an order without
// a gateway session.
type SeedPlanInput struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"max=150"`
	DurationDays int    `json:"duration_days" validate:"required,min=1,max=3650"`
	Amount       int64  `json:"amount" validate:"min=0"`
	Currency     string `json:"currency" validate:"required,len=3"`
	Fulfill      bool   `json:"fulfill"`
}
