package billing

import (
	"strconv"
	"strings"

	"github.com/ManuelReschke/PlanFox/app/models"
)

// DefaultDurationDays applies when a checkout declares no duration.
const DefaultDurationDays = 30

const maxDurationDays = 3650

// validateConfirmed checks the fields an order cannot be created without.
func validateConfirmed(p PaymentConfirmed) error {
	if strings.TrimSpace(p.SessionID) == "" {
		return ErrMissingSessionID
	}
	if strings.TrimSpace(p.Email) == "" {
		return ErrInvalidPayment
	}
	if p.DurationDays <= 0 || p.DurationDays > maxDurationDays {
		return ErrInvalidPayment
	}
	if p.Amount < 0 || len(models.NormalizeCurrency(p.Currency)) != 3 {
		return ErrInvalidPayment
	}
	return nil
}

// fulfillmentFor builds the pending fulfillment record written together with a
// new order.
func fulfillmentFor(plan *models.UserPlan, key string) *models.Fulfillment {
	return &models.Fulfillment{
		StripeSessionID: key,
		UserPlanID:      plan.ID,
		Email:           plan.CustomerEmail,
		Name:            plan.CustomerName,
		DurationDays:    plan.DurationDays,
		Currency:        plan.Currency,
		PaymentIntentID: plan.StripePaymentIntentID,
		Status:          models.FulfillmentStatusPending,
	}
}

// seedFulfillmentKey is the idempotency key used for seeded orders, which have
// no checkout session.
func seedFulfillmentKey(planID uint) string {
	return "seed:" + strconv.FormatUint(uint64(planID), 10)
}
