package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/apperror"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

const testSecret = "whsec_test"

func newTestService(repo *memoryRepository, d *recordingDispatcher) *Service {
	return NewService(repo,
		WithClock(func() time.Time { return fixedNow }),
		WithDispatcher(d),
		WithVerifier(&WebhookVerifier{
			Secret:    testSecret,
			Tolerance: DefaultWebhookTolerance,
			Now:       func() time.Time { return fixedNow },
		}),
	)
}

func confirmedFact(sessionID string) PaymentConfirmed {
	return PaymentConfirmed{
		SessionID:    sessionID,
		Email:        "Ana@Example.com",
		CustomerName: "Ana",
		DurationDays: 30,
		Amount:       3900,
		Currency:     "brl",
	}
}

func TestProcessConfirmedPayment_CreatesActivePlan(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	res, err := svc.ProcessConfirmedPayment(context.Background(), confirmedFact("sess_1"))
	require.NoError(t, err)
	require.True(t, res.Created)

	plan := res.Plan
	assert.Equal(t, models.PlanStatusActive, plan.SubscriptionStatus)
	assert.Equal(t, "ana@example.com", plan.CustomerEmail)
	assert.Equal(t, int64(3900), plan.Amount)
	assert.Equal(t, "BRL", plan.Currency)
	assert.Equal(t, fixedNow, plan.StartDate)
	assert.Equal(t, time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC), plan.ExpirationDate)
	assert.Nil(t, plan.UserID)
	require.NotNil(t, res.Fulfillment)
	assert.Equal(t, plan.ID, res.Fulfillment.UserPlanID)
	assert.Equal(t, models.FulfillmentStatusPending, res.Fulfillment.Status)
}

func TestProcessConfirmedPayment_ReplayReturnsSameOrder(t *testing.T) {
	repo := newMemoryRepository()
	d := &recordingDispatcher{}
	svc := newTestService(repo, d)

	first, err := svc.HandleConfirmedPayment(context.Background(), confirmedFact("sess_1"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := svc.HandleConfirmedPayment(context.Background(), confirmedFact("sess_1"))
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, first.Plan.ID, again.Plan.ID)
		assert.Equal(t, first.Plan.ExpirationDate, again.Plan.ExpirationDate)
	}

	assert.Equal(t, 1, repo.planCount())
	assert.Equal(t, 1, repo.fulfillmentCount())
	assert.Equal(t, 1, d.count())
}

func TestProcessConfirmedPayment_ConcurrentDeliveries(t *testing.T) {
	repo := newMemoryRepository()
	d := &recordingDispatcher{}
	svc := newTestService(repo, d)

	// Hold every caller at the lookup so they all race into the insert.
	const workers = 8
	var arrived sync.WaitGroup
	arrived.Add(workers)
	release := make(chan struct{})
	gate := make(chan struct{}, workers)
	repo.lookupHook = func() {
		select {
		case gate <- struct{}{}:
			arrived.Done()
			<-release
		default:
		}
	}

	var wg sync.WaitGroup
	results := make([]*ProcessResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.HandleConfirmedPayment(context.Background(), confirmedFact("sess_race"))
		}(i)
	}
	arrived.Wait()
	close(release)
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
		assert.Equal(t, results[0].Plan.ID, results[i].Plan.ID)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, repo.planCount())
	assert.Equal(t, 1, d.count())
	assert.Equal(t, workers, repo.insertCalls)
}

func TestProcessConfirmedPayment_DistinctSessions(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	a, err := svc.ProcessConfirmedPayment(context.Background(), confirmedFact("sess_a"))
	require.NoError(t, err)
	b, err := svc.ProcessConfirmedPayment(context.Background(), confirmedFact("sess_b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Plan.ID, b.Plan.ID)
	assert.Equal(t, 2, repo.planCount())
}

func TestProcessConfirmedPayment_Validation(t *testing.T) {
	svc := newTestService(newMemoryRepository(), &recordingDispatcher{})

	fact := confirmedFact("")
	_, err := svc.ProcessConfirmedPayment(context.Background(), fact)
	assert.ErrorIs(t, err, ErrMissingSessionID)

	fact = confirmedFact("sess_x")
	fact.DurationDays = 0
	_, err = svc.ProcessConfirmedPayment(context.Background(), fact)
	assert.ErrorIs(t, err, ErrInvalidPayment)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	fact = confirmedFact("sess_x")
	fact.Currency = "EURO"
	_, err = svc.ProcessConfirmedPayment(context.Background(), fact)
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestProcessConfirmedPayment_LinksAccountByEmail(t *testing.T) {
	repo := newMemoryRepository()
	repo.users["ana@example.com"] = 42
	svc := newTestService(repo, &recordingDispatcher{})

	res, err := svc.ProcessConfirmedPayment(context.Background(), confirmedFact("sess_1"))
	require.NoError(t, err)
	require.NotNil(t, res.Plan.UserID)
	assert.Equal(t, uint(42), *res.Plan.UserID)

	fact := confirmedFact("sess_2")
	fact.UserID = 7
	res, err = svc.ProcessConfirmedPayment(context.Background(), fact)
	require.NoError(t, err)
	assert.Equal(t, uint(7), *res.Plan.UserID)
}

func TestHandleConfirmedPayment_DispatchFailureDoesNotFail(t *testing.T) {
	repo := newMemoryRepository()
	d := &recordingDispatcher{err: errors.New("redis down")}
	svc := newTestService(repo, d)

	res, err := svc.HandleConfirmedPayment(context.Background(), confirmedFact("sess_1"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, d.count())
}

func checkoutEvent(eventID, sessionID, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": {
			"id": %q,
			"object": "checkout.session",
			"payment_status": %q,
			"payment_intent": "pi_123",
			"amount_total": 3900,
			"currency": "brl",
			"customer_details": {"email": "ana@example.com", "name": "Ana"},
			"metadata": {"duration_days": "30"}
		}}
	}`, eventID, fixedNow.Unix(), sessionID, status))
}

func TestHandleWebhook_ScenarioReplay(t *testing.T) {
	repo := newMemoryRepository()
	d := &recordingDispatcher{}
	svc := newTestService(repo, d)

	body := checkoutEvent("evt_1", "sess_1", "paid")
	sig := SignPayload(body, testSecret, fixedNow)

	first, err := svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotZero(t, first.PlanID)

	second, err := svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	// Same session, new event id: the gateway resent it as a different delivery.
	other := checkoutEvent("evt_2", "sess_1", "paid")
	third, err := svc.HandleWebhook(context.Background(), other, SignPayload(other, testSecret, fixedNow))
	require.NoError(t, err)
	assert.False(t, third.Created)
	assert.Equal(t, first.PlanID, third.PlanID)

	assert.Equal(t, 1, repo.planCount())
	assert.Equal(t, 1, d.count())

	plan, err := repo.FindPlanBySessionID(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3900), plan.Amount)
	assert.Equal(t, "BRL", plan.Currency)
	assert.Equal(t, 30, plan.DurationDays)
}

func TestHandleWebhook_InvalidSignatureHasNoSideEffects(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	body := checkoutEvent("evt_1", "sess_1", "paid")
	_, err := svc.HandleWebhook(context.Background(), body, SignPayload(body, "wrong", fixedNow))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
	assert.Equal(t, 0, repo.planCount())
	assert.Empty(t, repo.events)
}

func TestHandleWebhook_UnpaidCheckoutIsIgnored(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	body := checkoutEvent("evt_1", "sess_1", "unpaid")
	res, err := svc.HandleWebhook(context.Background(), body, SignPayload(body, testSecret, fixedNow))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, 0, repo.planCount())
}

func TestHandleWebhook_UnknownTypeAcknowledged(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	body := []byte(`{"id":"evt_9","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	res, err := svc.HandleWebhook(context.Background(), body, SignPayload(body, testSecret, fixedNow))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, EventUnknown, res.Type)
	assert.Len(t, repo.events, 1)
}

func TestHandleWebhook_FailedProcessingIsRetriedOnRedelivery(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	// No e-mail anywhere: processing fails validation and the event is kept for retry.
	bad := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{
		"id":"sess_1","payment_status":"paid","amount_total":100,"currency":"usd"}}}`)
	_, err := svc.HandleWebhook(context.Background(), bad, SignPayload(bad, testSecret, fixedNow))
	require.ErrorIs(t, err, ErrInvalidPayment)

	stored := repo.events["stripe|evt_1"]
	require.NotNil(t, stored)
	assert.True(t, stored.NeedsProcessing())

	_, err = svc.HandleWebhook(context.Background(), bad, SignPayload(bad, testSecret, fixedNow))
	require.ErrorIs(t, err, ErrInvalidPayment)
}

func TestSeedPlan(t *testing.T) {
	repo := newMemoryRepository()
	d := &recordingDispatcher{}
	svc := newTestService(repo, d)

	plan, err := svc.SeedPlan(context.Background(), SeedPlanInput{
		Email: "b@example.com", DurationDays: 14, Amount: 0, Currency: "usd", Fulfill: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanSourceSeed, plan.Source)
	assert.Nil(t, plan.StripeSessionID)
	assert.Equal(t, fixedNow.AddDate(0, 0, 14), plan.ExpirationDate)
	require.Equal(t, 1, d.count())
	assert.Equal(t, seedFulfillmentKey(plan.ID), d.calls[0])

	_, err = svc.SeedPlan(context.Background(), SeedPlanInput{Email: "b@example.com", Currency: "usd"})
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestExpirePlans(t *testing.T) {
	repo := newMemoryRepository()
	clock := fixedNow
	svc := NewService(repo, WithClock(func() time.Time { return clock }))

	_, err := svc.ProcessConfirmedPayment(context.Background(), confirmedFact("sess_1"))
	require.NoError(t, err)

	n, err := svc.ExpirePlans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = fixedNow.AddDate(0, 0, 31)
	n, err = svc.ExpirePlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	plans, err := svc.ListPlansForUser(context.Background(), 0, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, models.PlanStatusExpired, plans[0].SubscriptionStatus)
}

type stubFetcher struct {
	payload *EventPayload
	err     error
}

func (f stubFetcher) GetCheckoutSession(context.Context, string) (*EventPayload, error) {
	return f.payload, f.err
}

func TestVerifyCheckoutSession(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingDispatcher{})

	_, err := svc.VerifyCheckoutSession(context.Background(), stubFetcher{}, " ")
	assert.ErrorIs(t, err, ErrMissingSessionID)

	unpaid := &EventPayload{SessionID: "sess_1", PaymentStatus: "unpaid"}
	_, err = svc.VerifyCheckoutSession(context.Background(), stubFetcher{payload: unpaid}, "sess_1")
	assert.ErrorIs(t, err, ErrPaymentNotPaid)

	paid := &EventPayload{SessionID: "sess_1", PaymentStatus: "paid", AmountTotal: 3900, Currency: "BRL", DurationDays: 30, Email: "ana@example.com"}
	res, err := svc.VerifyCheckoutSession(context.Background(), stubFetcher{payload: paid}, "sess_1")
	require.NoError(t, err)
	assert.True(t, res.Created)

	res, err = svc.VerifyCheckoutSession(context.Background(), stubFetcher{payload: paid}, "sess_1")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 1, repo.planCount())
}
