package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PlanFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlanFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// PaymentProcessor is the slice of billing.Service the payment endpoints use.
type PaymentProcessor interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*billing.WebhookResult, error)
	VerifyCheckoutSession(ctx context.Context, fetcher billing.CheckoutSessionFetcher, sessionID string) (*billing.ProcessResult, error)
	ListPlansForUser(ctx context.Context, userID uint, email string) ([]models.UserPlan, error)
}

// PaymentController serves the gateway webhook, the payment verification
// endpoint and the customer plan listing.
type PaymentController struct {
	payments PaymentProcessor
	gateway  billing.CheckoutSessionFetcher
	events   EventCounter
	timeout  time.Duration
}

// NewPaymentController creates a PaymentController.
func NewPaymentController(payments PaymentProcessor, gateway billing.CheckoutSessionFetcher) *PaymentController {
	return &PaymentController{payments: payments, gateway: gateway, events: discardEvents{}, timeout: 20 * time.Second}
}

// WithEvents makes the controller count webhook outcomes.
func (pc *PaymentController) WithEvents(events EventCounter) *PaymentController {
	if events != nil {
		pc.events = events
	}
	return pc
}

// HandleStripeWebhook acknowledges every verified delivery, including
// ignored and duplicate ones. Bad signatures and malformed payloads get 400.
// Storage failures get 500 so the gateway redelivers.
func (pc *PaymentController) HandleStripeWebhook(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), pc.timeout)
	defer cancel()

	// c.Body is only valid during the handler; HandleWebhook does not retain it.
	result, err := pc.payments.HandleWebhook(ctx, c.Body(), c.Get(StripeSignatureHeader))
	if err != nil {
		switch apperror.KindOf(err) {
		case apperror.KindAuthentication, apperror.KindValidation:
			pc.events.Add(ctx, counter.WebhookRejected)
			return errorJSONStatus(c, fiber.StatusBadRequest, err)
		default:
			pc.events.Add(ctx, counter.WebhookFailed)
			log.Errorf("[Billing] Webhook processing failed: %v", err)
			return errorJSONStatus(c, fiber.StatusInternalServerError, err)
		}
	}

	switch {
	case result.Duplicate:
		pc.events.Add(ctx, counter.WebhookDuplicate)
	case result.Ignored:
		pc.events.Add(ctx, counter.WebhookIgnored)
	default:
		pc.events.Add(ctx, counter.WebhookReceived)
	}

	return c.JSON(fiber.Map{
		"received":  true,
		"event_id":  result.EventID,
		"type":      result.Type,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
	})
}

// HandleVerifyPayment confirms a checkout session the customer returned from.
func (pc *PaymentController) HandleVerifyPayment(c *fiber.Ctx) error {
	result, err := pc.verify(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"success":         true,
		"plan_id":         result.Plan.ID,
		"created":         result.Created,
		"duration_days":   result.Plan.DurationDays,
		"expiration_date": result.Plan.ExpirationDate.UTC().Format(time.RFC3339),
	})
}

// HandlePaymentSuccessPage is the redirect target of the hosted checkout.
func (pc *PaymentController) HandlePaymentSuccessPage(c *fiber.Ctx) error {
	result, err := pc.verify(c)
	if err != nil {
		return c.Status(apperror.HTTPStatus(err)).SendString(apperror.Message(err))
	}
	return c.Render("pages/payment_success", fiber.Map{
		"DurationDays":   result.Plan.DurationDays,
		"ExpirationDate": result.Plan.ExpirationDate.UTC().Format("2006-01-02"),
		"Email":          result.Plan.CustomerEmail,
	})
}

func (pc *PaymentController) verify(c *fiber.Ctx) (*billing.ProcessResult, error) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		return nil, billing.ErrMissingSessionID
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), pc.timeout)
	defer cancel()

	result, err := pc.payments.VerifyCheckoutSession(ctx, pc.gateway, sessionID)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Plan == nil {
		return nil, errors.New("verification returned no order")
	}
	return result, nil
}

// HandleListPlans lists the caller's orders.
func (pc *PaymentController) HandleListPlans(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	plans, err := pc.payments.ListPlansForUser(c.UserContext(), userCtx.UserID, userCtx.Email)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}
