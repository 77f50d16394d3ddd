package refund

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database"
)

// Decision is the admin verdict applied by Repository.Decide.
type Decision struct {
	PublicID  string
	Action    Action
	Actor     string
	Notes     string
	DecidedAt time.Time
}

// Repository provides DB operations used by the refund workflow.
type Repository interface {
	FindPlan(ctx context.Context, planID uint) (*models.UserPlan, error)
	CountRequestsForPlan(ctx context.Context, planID uint) (int64, error)
	// CreateRequest inserts a pending request. A unique violation on the
	// active plan slot is returned as ErrAlreadyRequested.
	CreateRequest(ctx context.Context, req *models.RefundRequest) error
	FindByPublicID(ctx context.Context, publicID string) (*models.RefundRequest, error)
	// Decide applies a decision to a pending request and, on approval, cancels
	// the order in the same transaction.
	Decide(ctx context.Context, d Decision) (*models.RefundRequest, error)
	ListByOwner(ctx context.Context, userID uint, email string) ([]models.RefundRequest, error)
	List(ctx context.Context, status string, limit int) ([]models.RefundRequest, error)
	CancelPlansWithApprovedRefunds(ctx context.Context) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a refund repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindPlan(ctx context.Context, planID uint) (*models.UserPlan, error) {
	var plan models.UserPlan
	if err := r.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) CountRequestsForPlan(ctx context.Context, planID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.RefundRequest{}).Where("user_plan_id = ?", planID).Count(&n).Error
	return n, err
}

func (r *gormRepository) CreateRequest(ctx context.Context, req *models.RefundRequest) error {
	err := r.db.WithContext(ctx).Create(req).Error
	if database.IsDuplicateKeyError(err) {
		return ErrAlreadyRequested
	}
	return err
}

func (r *gormRepository) FindByPublicID(ctx context.Context, publicID string) (*models.RefundRequest, error) {
	var req models.RefundRequest
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormRepository) Decide(ctx context.Context, d Decision) (*models.RefundRequest, error) {
	var out models.RefundRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"processed_at": d.DecidedAt,
			"processed_by": d.Actor,
			"admin_notes":  d.Notes,
		}
		if d.Action == ActionApprove {
			updates["status"] = models.RefundStatusApproved
		} else {
			updates["status"] = models.RefundStatusRejected
			updates["active_plan_id"] = nil
		}

		res := tx.Model(&models.RefundRequest{}).
			Where("public_id = ? AND status = ?", d.PublicID, models.RefundStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing models.RefundRequest
			if err := tx.Where("public_id = ?", d.PublicID).First(&existing).Error; err != nil {
				if database.IsNotFound(err) {
					return ErrRequestNotFound
				}
				return err
			}
			return ErrAlreadyProcessed
		}

		if err := tx.Where("public_id = ?", d.PublicID).First(&out).Error; err != nil {
			return err
		}

		if d.Action == ActionApprove {
			return tx.Model(&models.UserPlan{}).
				Where("id = ? AND subscription_status <> ?", out.UserPlanID, models.PlanStatusCancelled).
				Update("subscription_status", models.PlanStatusCancelled).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *gormRepository) ListByOwner(ctx context.Context, userID uint, email string) ([]models.RefundRequest, error) {
	var out []models.RefundRequest
	q := r.db.WithContext(ctx)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	} else {
		q = q.Where("user_id = 0 AND customer_email = ?", models.NormalizeEmail(email))
	}
	err := q.Order("requested_at DESC").Find(&out).Error
	return out, err
}

func (r *gormRepository) List(ctx context.Context, status string, limit int) ([]models.RefundRequest, error) {
	var out []models.RefundRequest
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("requested_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *gormRepository) CancelPlansWithApprovedRefunds(ctx context.Context) (int64, error) {
	approved := r.db.Model(&models.RefundRequest{}).
		Select("user_plan_id").
		Where("status = ?", models.RefundStatusApproved)
	res := r.db.WithContext(ctx).Model(&models.UserPlan{}).
		Where("subscription_status <> ? AND id IN (?)", models.PlanStatusCancelled, approved).
		Update("subscription_status", models.PlanStatusCancelled)
	return res.RowsAffected, res.Error
}
