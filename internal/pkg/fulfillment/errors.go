package fulfillment

import "github.com/ManuelReschke/PlanFox/internal/pkg/apperror"

var (
	ErrNotFound       = apperror.New(apperror.KindNotFound, "fulfillment_not_found", "fulfillment not found")
	ErrMissingKey     = apperror.New(apperror.KindValidation, "missing_session_id", "session_id is required")
	ErrGeneration     = apperror.New(apperror.KindTransient, "generation_failed", "content generation failed")
	ErrDelivery       = apperror.New(apperror.KindTransient, "delivery_failed", "content delivery failed")
	ErrAttemptsExceed = apperror.New(apperror.KindBusinessRule, "attempts_exhausted", "fulfillment retry limit reached")
)
