package models

import "time"

// Capabilities checked by the authorization layer.
const (
	CapabilityRefundsDecide = "refunds:decide"
	CapabilityRefundsRead   = "refunds:read"
	CapabilityQueueRead     = "queue:read"
)

// AdminCapabilities is the set granted to bootstrap administrators.
var AdminCapabilities = []string{
	CapabilityRefundsDecide,
	CapabilityRefundsRead,
	CapabilityQueueRead,
}

// UserCapability grants a single named capability to a user.
type UserCapability struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index:ux_user_capabilities_user_cap,unique,priority:1" json:"user_id"`
	Capability string    `gorm:"type:varchar(64);not null;index:ux_user_capabilities_user_cap,unique,priority:2" json:"capability"`
	GrantedBy  string    `gorm:"type:varchar(100);not null;default:''" json:"granted_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
