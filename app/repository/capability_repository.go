package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PlanFox/app/models"
)

type capabilityRepository struct {
	db *gorm.DB
}

// NewCapabilityRepository creates a new capability repository instance
func NewCapabilityRepository(db *gorm.DB) CapabilityRepository {
	return &capabilityRepository{db: db}
}

func (r *capabilityRepository) Has(ctx context.Context, userID uint, capability string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.UserCapability{}).
		Where("user_id = ? AND capability = ?", userID, strings.TrimSpace(capability)).
		Count(&n).Error
	return n > 0, err
}

func (r *capabilityRepository) Grant(ctx context.Context, userID uint, capability, grantedBy string) (bool, error) {
	row := models.UserCapability{
		UserID:     userID,
		Capability: strings.TrimSpace(capability),
		GrantedBy:  grantedBy,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *capabilityRepository) Revoke(ctx context.Context, userID uint, capability string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND capability = ?", userID, strings.TrimSpace(capability)).
		Delete(&models.UserCapability{}).Error
}

func (r *capabilityRepository) ListForUser(ctx context.Context, userID uint) ([]string, error) {
	var caps []string
	err := r.db.WithContext(ctx).Model(&models.UserCapability{}).
		Where("user_id = ?", userID).
		Order("capability ASC").
		Pluck("capability", &caps).Error
	return caps, err
}
