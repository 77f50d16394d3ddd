package models

import "time"

const (
	RefundStatusPending  = "pending"
	RefundStatusApproved = "approved"
	RefundStatusRejected = "rejected"
)

// RefundRequest is a customer's request to reverse an order.
//
// ActivePlanID mirrors UserPlanID while the request is pending or approved and
// is NULL once rejected. Its unique index is what guarantees at most one
// non-rejected request per order across all server instances.
type RefundRequest struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	PublicID      string     `gorm:"type:char(36);not null;uniqueIndex" json:"id"`
	UserPlanID    uint       `gorm:"not null;index" json:"user_plan_id"`
	ActivePlanID  *uint      `gorm:"uniqueIndex" json:"-"`
	UserID        uint       `gorm:"not null;default:0;index" json:"user_id"`
	CustomerEmail string     `gorm:"type:varchar(200);not null" json:"customer_email"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Currency      string     `gorm:"type:char(3);not null" json:"currency"`
	Reason        string     `gorm:"type:text" json:"reason"`
	Status        string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	RequestedAt   time.Time  `gorm:"type:datetime;not null" json:"requested_at"`
	ProcessedAt   *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessedBy   string     `gorm:"type:varchar(200);not null;default:''" json:"processed_by,omitempty"`
	AdminNotes    string     `gorm:"type:text" json:"admin_notes,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BlocksNewRequest reports whether the request still occupies the order's
// single non-rejected slot.
func (r *RefundRequest) BlocksNewRequest() bool {
	return r.Status == RefundStatusPending || r.Status == RefundStatusApproved
}
