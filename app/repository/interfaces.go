package repository

import (
	"context"

	"github.com/ManuelReschke/PlanFox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	// FirstOrCreateByEmail returns the user with the address, creating it when missing.
	FirstOrCreateByEmail(ctx context.Context, email, name string) (*models.User, error)
}

// CapabilityRepository defines the interface for capability grants
type CapabilityRepository interface {
	Has(ctx context.Context, userID uint, capability string) (bool, error)
	// Grant is idempotent: granting an existing capability is a no-op.
	Grant(ctx context.Context, userID uint, capability, grantedBy string) (bool, error)
	Revoke(ctx context.Context, userID uint, capability string) error
	ListForUser(ctx context.Context, userID uint) ([]string, error)
}
