package models

import "time"

const (
	FulfillmentStatusPending    = "pending"
	FulfillmentStatusProcessing = "processing"
	FulfillmentStatusCompleted  = "completed"
	FulfillmentStatusFailed     = "failed"
)

// FulfillmentMaxAttempts caps automatic re-dispatch of a failing fulfillment.
const FulfillmentMaxAttempts = 5

// Fulfillment is the consumer-side idempotency record of a content generation
// and delivery run. One row per checkout session.
type Fulfillment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	StripeSessionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_session_id"`
	UserPlanID      uint       `gorm:"not null;index" json:"user_plan_id"`
	Email           string     `gorm:"type:varchar(200);not null" json:"email"`
	Name            string     `gorm:"type:varchar(150);not null;default:''" json:"name"`
	DurationDays    int        `gorm:"not null" json:"duration_days"`
	Currency        string     `gorm:"type:char(3);not null" json:"currency"`
	PaymentIntentID string     `gorm:"type:varchar(191);not null;default:''" json:"payment_intent_id"`
	Status          string     `gorm:"type:varchar(16);not null;default:'pending';index:idx_fulfillments_status_updated,priority:1" json:"status"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`
	ArchiveKey      string     `gorm:"type:varchar(255);not null;default:''" json:"archive_key,omitempty"`
	CompletedAt     *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime;index:idx_fulfillments_status_updated,priority:2" json:"updated_at"`
}

// IsClaimable reports whether a worker may start (or restart) this fulfillment.
func (f *Fulfillment) IsClaimable() bool {
	return f.Status == FulfillmentStatusPending || f.Status == FulfillmentStatusFailed
}
