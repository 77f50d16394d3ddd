package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database/dbtest"
)

func checkoutPlan(sessionID string) *models.UserPlan {
	sid := sessionID
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.UserPlan{
		CustomerEmail:      "ana@example.com",
		CustomerName:       "Ana",
		DurationDays:       30,
		Amount:             3900,
		Currency:           "eur",
		StartDate:          start,
		ExpirationDate:     start.AddDate(0, 0, 30),
		SubscriptionStatus: models.PlanStatusActive,
		StripeSessionID:    &sid,
		Source:             models.PlanSourceCheckout,
	}
}

func checkoutFulfillment(sessionID string) *models.Fulfillment {
	return &models.Fulfillment{
		StripeSessionID: sessionID,
		Email:           "ana@example.com",
		Name:            "Ana",
		DurationDays:    30,
		Currency:        "eur",
		Status:          models.FulfillmentStatusPending,
	}
}

func TestGormRepository_InsertPlanWithFulfillment_DuplicateSessionLoses(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := checkoutPlan("cs_dup")
	created, err := repo.InsertPlanWithFulfillment(ctx, first, checkoutFulfillment("cs_dup"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	second := checkoutPlan("cs_dup")
	created, err = repo.InsertPlanWithFulfillment(ctx, second, checkoutFulfillment("cs_dup"))
	require.NoError(t, err)
	assert.False(t, created)

	var plans, fulfillments int64
	require.NoError(t, db.Model(&models.UserPlan{}).Count(&plans).Error)
	require.NoError(t, db.Model(&models.Fulfillment{}).Count(&fulfillments).Error)
	assert.Equal(t, int64(1), plans)
	assert.Equal(t, int64(1), fulfillments)

	var f models.Fulfillment
	require.NoError(t, db.Where("stripe_session_id = ?", "cs_dup").First(&f).Error)
	assert.Equal(t, first.ID, f.UserPlanID)

	found, err := repo.FindPlanBySessionID(ctx, "cs_dup")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestGormRepository_InsertPlanWithFulfillment_DistinctSessions(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for _, sid := range []string{"cs_a", "cs_b"} {
		created, err := repo.InsertPlanWithFulfillment(ctx, checkoutPlan(sid), checkoutFulfillment(sid))
		require.NoError(t, err)
		assert.True(t, created, sid)
	}

	var fulfillments int64
	require.NoError(t, db.Model(&models.Fulfillment{}).Count(&fulfillments).Error)
	assert.Equal(t, int64(2), fulfillments)
}
