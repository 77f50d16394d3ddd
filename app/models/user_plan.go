package models

import (
	"strings"
	"time"
)

const (
	PlanStatusActive    = "active"
	PlanStatusExpired   = "expired"
	PlanStatusCancelled = "cancelled"
)

const (
	PlanSourceCheckout = "checkout"
	PlanSourceSeed     = "seed"
)

// UserPlan is a fulfilled purchase ("order"): access to a generated plan for a
// fixed number of days. Rows are never deleted, only status-transitioned.
type UserPlan struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                *uint     `gorm:"index" json:"user_id,omitempty"`
	CustomerEmail         string    `gorm:"type:varchar(200);not null;index" json:"customer_email"`
	CustomerName          string    `gorm:"type:varchar(150);not null;default:''" json:"customer_name"`
	DurationDays          int       `gorm:"not null" json:"duration_days"`
	Amount                int64     `gorm:"not null" json:"amount"`
	Currency              string    `gorm:"type:char(3);not null" json:"currency"`
	StartDate             time.Time `gorm:"type:datetime;not null" json:"start_date"`
	ExpirationDate        time.Time `gorm:"type:datetime;not null;index" json:"expiration_date"`
	SubscriptionStatus    string    `gorm:"type:varchar(16);not null;default:'active';index" json:"subscription_status"`
	StripeSessionID       *string   `gorm:"type:varchar(191);uniqueIndex" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string    `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_payment_intent_id"`
	Source                string    `gorm:"type:varchar(16);not null;default:'checkout'" json:"source"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewActivePlan builds an active plan starting at now and lasting durationDays.
func NewActivePlan(now time.Time, durationDays int) *UserPlan {
	start := now.UTC()
	return &UserPlan{
		DurationDays:       durationDays,
		StartDate:          start,
		ExpirationDate:     start.AddDate(0, 0, durationDays),
		SubscriptionStatus: PlanStatusActive,
		Source:             PlanSourceCheckout,
	}
}

// SessionID returns the originating checkout session id or "".
func (p *UserPlan) SessionID() string {
	if p.StripeSessionID == nil {
		return ""
	}
	return *p.StripeSessionID
}

// IsOwnedBy reports whether the account identified by userID/email owns the plan.
// Plans linked to an account compare ids; guest checkouts compare e-mail.
func (p *UserPlan) IsOwnedBy(userID uint, email string) bool {
	if p.UserID != nil && *p.UserID != 0 {
		return userID != 0 && *p.UserID == userID
	}
	e := NormalizeEmail(email)
	return e != "" && NormalizeEmail(p.CustomerEmail) == e
}

// CanTransitionPlanStatus encodes the monotonic status machine: active may
// expire or be cancelled, expired may still be cancelled, cancelled is final.
func CanTransitionPlanStatus(from, to string) bool {
	from = strings.ToLower(from)
	to = strings.ToLower(to)
	switch from {
	case PlanStatusActive:
		return to == PlanStatusExpired || to == PlanStatusCancelled
	case PlanStatusExpired:
		return to == PlanStatusCancelled
	default:
		return false
	}
}

// NormalizeCurrency upper-cases an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
