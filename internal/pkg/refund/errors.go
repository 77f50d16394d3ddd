package refund

import "github.com/ManuelReschke/PlanFox/internal/pkg/apperror"

var (
	ErrOrderNotFound      = apperror.New(apperror.KindNotFound, "order_not_found", "order not found")
	ErrRequestNotFound    = apperror.New(apperror.KindNotFound, "refund_not_found", "refund request not found")
	ErrNotOwner           = apperror.New(apperror.KindAuthorization, "not_owner", "order belongs to another customer")
	ErrInvalidAction      = apperror.New(apperror.KindValidation, "invalid_action", "action must be approve or reject")
	ErrInvalidStatus      = apperror.New(apperror.KindValidation, "invalid_status", "status must be pending, approved or rejected")
	ErrInvalidReason      = apperror.New(apperror.KindValidation, "invalid_reason", "reason is too long")
	ErrWindowExpired      = apperror.New(apperror.KindBusinessRule, "refund_window_expired", "refund window expired")
	ErrAlreadyRequested   = apperror.New(apperror.KindBusinessRule, "refund_already_requested", "refund request already exists for this order")
	ErrAlreadyProcessed   = apperror.New(apperror.KindBusinessRule, "refund_already_processed", "refund request already processed")
	ErrTooManyAttempts    = apperror.New(apperror.KindBusinessRule, "refund_attempts_exhausted", "maximum number of refund requests reached for this order")
	ErrOrderNotRefundable = apperror.New(apperror.KindBusinessRule, "order_not_refundable", "order is already cancelled")
)
