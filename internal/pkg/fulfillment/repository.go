package fulfillment

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
)

// Repository provides DB operations used by the fulfillment worker and sweeper.
type Repository interface {
	FindByID(ctx context.Context, id uint) (*models.Fulfillment, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Fulfillment, error)
	FindPlan(ctx context.Context, planID uint) (*models.UserPlan, error)
	// Claim moves a record to processing if it is pending, failed or stuck in
	// processing since before staleBefore. It reports whether this caller won.
	Claim(ctx context.Context, id uint, staleBefore time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uint, archiveKey string, at time.Time) error
	MarkFailed(ctx context.Context, id uint, lastError string) error
	ListRedispatchable(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.Fulfillment, error)
	// Requeue releases a stale record for re-dispatch: a stuck processing claim
	// goes back to pending and updated_at moves to at. It reports whether the
	// record was still stale, so concurrent sweepers dispatch it once.
	Requeue(ctx context.Context, id uint, staleBefore, at time.Time) (bool, error)
	// FailAbandoned marks processing claims that went stale on their last
	// allowed attempt as failed and returns how many it changed.
	FailAbandoned(ctx context.Context, staleBefore time.Time, maxAttempts int, reason string) (int64, error)
	ResetForRetry(ctx context.Context, id uint) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a fulfillment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByID(ctx context.Context, id uint) (*models.Fulfillment, error) {
	var f models.Fulfillment
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *gormRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Fulfillment, error) {
	var f models.Fulfillment
	if err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *gormRepository) FindPlan(ctx context.Context, planID uint) (*models.UserPlan, error) {
	var plan models.UserPlan
	if err := r.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) Claim(ctx context.Context, id uint, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Where("id = ?", id).
		Where("status IN ? OR (status = ? AND updated_at < ?)",
			[]string{models.FulfillmentStatusPending, models.FulfillmentStatusFailed},
			models.FulfillmentStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":   models.FulfillmentStatusProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *gormRepository) MarkCompleted(ctx context.Context, id uint, archiveKey string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Where("id = ? AND status = ?", id, models.FulfillmentStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.FulfillmentStatusCompleted,
			"archive_key":  archiveKey,
			"completed_at": at,
			"last_error":   "",
		}).Error
}

func (r *gormRepository) MarkFailed(ctx context.Context, id uint, lastError string) error {
	return r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Where("id = ? AND status = ?", id, models.FulfillmentStatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.FulfillmentStatusFailed,
			"last_error": lastError,
		}).Error
}

func (r *gormRepository) ListRedispatchable(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.Fulfillment, error) {
	var out []models.Fulfillment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND attempts < ? AND updated_at < ?",
			[]string{models.FulfillmentStatusPending, models.FulfillmentStatusFailed, models.FulfillmentStatusProcessing},
			maxAttempts, staleBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) Requeue(ctx context.Context, id uint, staleBefore, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Where("id = ? AND status IN ? AND updated_at < ?", id,
			[]string{models.FulfillmentStatusPending, models.FulfillmentStatusFailed, models.FulfillmentStatusProcessing},
			staleBefore).
		Updates(map[string]interface{}{
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				models.FulfillmentStatusProcessing, models.FulfillmentStatusPending),
			"updated_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *gormRepository) FailAbandoned(ctx context.Context, staleBefore time.Time, maxAttempts int, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Where("status = ? AND attempts >= ? AND updated_at < ?", models.FulfillmentStatusProcessing, maxAttempts, staleBefore).
		Updates(map[string]interface{}{
			"status":     models.FulfillmentStatusFailed,
			"last_error": reason,
		})
	return res.RowsAffected, res.Error
}

// ResetForRetry gives an exhausted or failed record a fresh attempt budget.
func (r *gormRepository) ResetForRetry(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Where("id = ? AND status = ?", id, models.FulfillmentStatusFailed).
		Updates(map[string]interface{}{
			"status":   models.FulfillmentStatusPending,
			"attempts": 0,
		}).Error
}

func (r *gormRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Fulfillment{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
