package constants

// Route constants
const (
	APIPrefix = "/api/v1"

	WebhookStripeRoute   = "/webhooks/stripe"
	PaymentsVerifyRoute  = "/payments/verify"
	PlansRoute           = "/plans"
	AccountRoute         = "/account"
	RefundsRoute         = "/refunds"
	AdminRefundsRoute    = "/admin/refunds"
	AdminDecisionRoute   = "/admin/refunds/decision"
	AdminQueueStatsRoute = "/admin/queue/stats"

	InternalPrefix           = "/internal"
	InternalFulfillmentRoute = "/fulfillment"
	InternalPlansRoute       = "/plans"

	PaymentSuccessRoute = "/payment/success"
	HealthRoute         = "/healthz"
	DocsRoute           = "/docs/api"
)
