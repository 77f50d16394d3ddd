package billing

import "github.com/ManuelReschke/PlanFox/internal/pkg/apperror"

var (
	ErrInvalidSignature   = apperror.New(apperror.KindAuthentication, "invalid_signature", "webhook signature could not be verified")
	ErrMalformedPayload   = apperror.New(apperror.KindValidation, "invalid_payload", "webhook payload is malformed")
	ErrMissingSessionID   = apperror.New(apperror.KindValidation, "missing_session_id", "session_id is required")
	ErrInvalidPayment     = apperror.New(apperror.KindValidation, "invalid_payment", "payment confirmation is missing required fields")
	ErrPaymentNotPaid     = apperror.New(apperror.KindBusinessRule, "payment_not_paid", "payment has not been completed yet")
	ErrSessionNotFound    = apperror.New(apperror.KindNotFound, "session_not_found", "checkout session not found")
	ErrGatewayUnavailable = apperror.New(apperror.KindTransient, "gateway_unavailable", "payment gateway request failed")
)
