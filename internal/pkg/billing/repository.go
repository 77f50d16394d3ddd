package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindPlanBySessionID(ctx context.Context, sessionID string) (*models.UserPlan, error)
	// InsertPlanWithFulfillment inserts plan keyed by its session id together
	// with its pending fulfillment record in one transaction. It returns
	// false, without error, when another writer already owns the session id.
	InsertPlanWithFulfillment(ctx context.Context, plan *models.UserPlan, fulfillment *models.Fulfillment) (bool, error)
	CreateSeededPlan(ctx context.Context, plan *models.UserPlan, withFulfillment bool) (*models.Fulfillment, error)
	FindUserIDByEmail(ctx context.Context, email string) (uint, error)
	ListPlansByOwner(ctx context.Context, userID uint, email string) ([]models.UserPlan, error)
	ExpirePlans(ctx context.Context, now time.Time) (int64, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindPlanBySessionID(ctx context.Context, sessionID string) (*models.UserPlan, error) {
	var plan models.UserPlan
	err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) InsertPlanWithFulfillment(ctx context.Context, plan *models.UserPlan, fulfillment *models.Fulfillment) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(plan)
		if res.Error != nil {
			if database.IsDuplicateKeyError(res.Error) {
				return nil
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		fulfillment.UserPlanID = plan.ID
		if err := tx.Create(fulfillment).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *gormRepository) CreateSeededPlan(ctx context.Context, plan *models.UserPlan, withFulfillment bool) (*models.Fulfillment, error) {
	var out *models.Fulfillment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return err
		}
		if !withFulfillment {
			return nil
		}
		out = fulfillmentFor(plan, seedFulfillmentKey(plan.ID))
		return tx.Create(out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) FindUserIDByEmail(ctx context.Context, email string) (uint, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id").Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (r *gormRepository) ListPlansByOwner(ctx context.Context, userID uint, email string) ([]models.UserPlan, error) {
	var plans []models.UserPlan
	q := r.db.WithContext(ctx)
	if userID != 0 {
		q = q.Where("user_id = ? OR (user_id IS NULL AND customer_email = ?)", userID, models.NormalizeEmail(email))
	} else {
		q = q.Where("user_id IS NULL AND customer_email = ?", models.NormalizeEmail(email))
	}
	err := q.Order("start_date DESC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) ExpirePlans(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.UserPlan{}).
		Where("subscription_status = ? AND expiration_date < ?", models.PlanStatusActive, now).
		Update("subscription_status", models.PlanStatusExpired)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil && !database.IsDuplicateKeyError(tx.Error) {
		return false, nil, tx.Error
	}

	created := tx.Error == nil && tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
