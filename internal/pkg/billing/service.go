package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/internal/pkg/database"
	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
)

// FulfillmentDispatcher hands a freshly created fulfillment record to the
// asynchronous worker. Implementations must not block on the work itself.
type FulfillmentDispatcher interface {
	Dispatch(ctx context.Context, fulfillment *models.Fulfillment) error
}

// Service turns verified payment events into orders exactly once per
// checkout session and triggers fulfillment for new orders.
type Service struct {
	repo                Repository
	verifier            *WebhookVerifier
	dispatcher          FulfillmentDispatcher
	now                 func() time.Time
	defaultDurationDays int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithVerifier sets the webhook signature verifier.
func WithVerifier(v *WebhookVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithDispatcher sets the fulfillment dispatcher used after new orders.
func WithDispatcher(d FulfillmentDispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithDefaultDuration sets the duration applied to checkouts that declare none.
func WithDefaultDuration(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultDurationDays = days
		}
	}
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:                repo,
		now:                 time.Now,
		defaultDurationDays: DefaultDurationDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle, reading the
// webhook secret from the environment.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	base := []Option{
		WithVerifier(&WebhookVerifier{
			Secret:    env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			Tolerance: env.GetEnvDuration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", int(DefaultWebhookTolerance/time.Second), time.Second),
		}),
		WithDefaultDuration(env.GetEnvInt("PLAN_DEFAULT_DURATION_DAYS", DefaultDurationDays)),
	}
	return NewService(NewRepository(db), append(base, opts...)...)
}

// ProcessConfirmedPayment ensures exactly one order exists for the fact's
// session id. Replays return the existing order unchanged. Under concurrent
// redelivery the storage unique key decides the winner and the loser falls
// back to the lookup path.
func (s *Service) ProcessConfirmedPayment(ctx context.Context, fact PaymentConfirmed) (*ProcessResult, error) {
	fact.SessionID = strings.TrimSpace(fact.SessionID)
	if err := validateConfirmed(fact); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindPlanBySessionID(ctx, fact.SessionID)
	if err == nil {
		log.Debugf("[Billing] Session %s already processed as plan %d", fact.SessionID, existing.ID)
		return &ProcessResult{Plan: existing}, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("lookup plan for session %s: %w", fact.SessionID, err)
	}

	plan := s.newPlan(ctx, fact)
	fulfillment := fulfillmentFor(plan, fact.SessionID)

	created, err := s.repo.InsertPlanWithFulfillment(ctx, plan, fulfillment)
	if err != nil {
		return nil, fmt.Errorf("insert plan for session %s: %w", fact.SessionID, err)
	}
	if !created {
		winner, err := s.repo.FindPlanBySessionID(ctx, fact.SessionID)
		if err != nil {
			return nil, fmt.Errorf("reload plan for session %s: %w", fact.SessionID, err)
		}
		log.Infof("[Billing] Concurrent delivery for session %s resolved to plan %d", fact.SessionID, winner.ID)
		return &ProcessResult{Plan: winner}, nil
	}

	log.Infof("[Billing] Created plan %d for session %s (%d days, %d %s)",
		plan.ID, fact.SessionID, plan.DurationDays, plan.Amount, plan.Currency)
	return &ProcessResult{Plan: plan, Created: true, Fulfillment: fulfillment}, nil
}

// HandleConfirmedPayment processes the fact and, for newly created orders only,
// dispatches fulfillment. Dispatch failures are logged and never fail the call:
// the pending fulfillment record is picked up again by the re-dispatch sweeper.
func (s *Service) HandleConfirmedPayment(ctx context.Context, fact PaymentConfirmed) (*ProcessResult, error) {
	res, err := s.ProcessConfirmedPayment(ctx, fact)
	if err != nil {
		return nil, err
	}
	if res.Created && res.Fulfillment != nil {
		s.dispatch(ctx, res.Fulfillment)
	}
	return res, nil
}

func (s *Service) dispatch(ctx context.Context, f *models.Fulfillment) {
	if s.dispatcher == nil {
		log.Warnf("[Billing] No fulfillment dispatcher configured, session %s left pending", f.StripeSessionID)
		return
	}
	if err := s.dispatcher.Dispatch(ctx, f); err != nil {
		log.Errorf("[Billing] Fulfillment dispatch for session %s failed: %v", f.StripeSessionID, err)
	}
}

func (s *Service) newPlan(ctx context.Context, fact PaymentConfirmed) *models.UserPlan {
	// Activation is the moment the order is recorded, not the gateway timestamp.
	plan := models.NewActivePlan(s.now(), fact.DurationDays)
	sessionID := fact.SessionID
	plan.StripeSessionID = &sessionID
	plan.StripePaymentIntentID = strings.TrimSpace(fact.PaymentIntentID)
	plan.CustomerEmail = models.NormalizeEmail(fact.Email)
	plan.CustomerName = strings.TrimSpace(fact.CustomerName)
	plan.Amount = fact.Amount
	plan.Currency = models.NormalizeCurrency(fact.Currency)
	plan.Source = models.PlanSourceCheckout

	if uid := s.resolveOwner(ctx, fact); uid != 0 {
		plan.UserID = &uid
	}
	return plan
}

// resolveOwner links the order to a local account: the declared user id wins,
// otherwise the purchaser e-mail is looked up. Guest checkouts stay unlinked.
func (s *Service) resolveOwner(ctx context.Context, fact PaymentConfirmed) uint {
	if fact.UserID != 0 {
		return fact.UserID
	}
	uid, err := s.repo.FindUserIDByEmail(ctx, fact.Email)
	if err != nil {
		if !database.IsNotFound(err) {
			log.Warnf("[Billing] Owner lookup for session %s failed: %v", fact.SessionID, err)
		}
		return 0
	}
	return uid
}

// SeedPlan creates an active order on behalf of a trusted internal actor.
func (s *Service) SeedPlan(ctx context.Context, in SeedPlanInput) (*models.UserPlan, error) {
	if strings.TrimSpace(in.Email) == "" || in.DurationDays <= 0 || in.DurationDays > maxDurationDays {
		return nil, ErrInvalidPayment
	}
	if len(models.NormalizeCurrency(in.Currency)) != 3 || in.Amount < 0 {
		return nil, ErrInvalidPayment
	}

	plan := models.NewActivePlan(s.now(), in.DurationDays)
	plan.CustomerEmail = models.NormalizeEmail(in.Email)
	plan.CustomerName = strings.TrimSpace(in.Name)
	plan.Amount = in.Amount
	plan.Currency = models.NormalizeCurrency(in.Currency)
	plan.Source = models.PlanSourceSeed
	if in.UserID != 0 {
		uid := in.UserID
		plan.UserID = &uid
	}

	fulfillment, err := s.repo.CreateSeededPlan(ctx, plan, in.Fulfill)
	if err != nil {
		return nil, fmt.Errorf("seed plan: %w", err)
	}
	log.Infof("[Billing] Seeded plan %d for %s (%d days)", plan.ID, plan.CustomerEmail, plan.DurationDays)
	if fulfillment != nil {
		s.dispatch(ctx, fulfillment)
	}
	return plan, nil
}

// ListPlansForUser returns the orders owned by an account.
func (s *Service) ListPlansForUser(ctx context.Context, userID uint, email string) ([]models.UserPlan, error) {
	if userID == 0 && strings.TrimSpace(email) == "" {
		return nil, errors.New("user_id or email is required")
	}
	return s.repo.ListPlansByOwner(ctx, userID, email)
}

// ExpirePlans moves active orders past their expiration date to expired.
func (s *Service) ExpirePlans(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpirePlans(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Billing] Expired %d plans", n)
	}
	return n, nil
}

// VerifyWebhook authenticates and decodes a delivery without side effects.
func (s *Service) VerifyWebhook(rawBody []byte, signatureHeader string) (*PaymentEvent, error) {
	if s.verifier == nil {
		return nil, ErrInvalidSignature
	}
	if err := s.verifier.Verify(rawBody, signatureHeader); err != nil {
		return nil, err
	}
	return ParseWebhookEvent(rawBody, s.defaultDurationDays)
}

// HandleWebhook verifies, deduplicates and applies a gateway delivery. A
// failed verification returns ErrInvalidSignature before anything is stored.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := s.VerifyWebhook(rawBody, signatureHeader)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, Type: event.Type}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.GatewayType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event %s: %w", event.ID, err)
	}
	if !created && !stored.NeedsProcessing() {
		result.Duplicate = true
		return result, nil
	}

	procErr := s.applyEvent(ctx, event, result)
	if markErr := s.MarkWebhookProcessed(ctx, stored.ID, procErr); markErr != nil {
		log.Errorf("[Billing] Failed to mark webhook event %s processed: %v", event.ID, markErr)
	}
	if procErr != nil {
		return nil, procErr
	}
	return result, nil
}

func (s *Service) applyEvent(ctx context.Context, event *PaymentEvent, result *WebhookResult) error {
	switch event.Type {
	case EventCheckoutCompleted:
		if !event.Payload.IsPaid() {
			log.Infof("[Billing] Checkout %s completed with payment_status=%q, waiting for async settlement",
				event.Payload.SessionID, event.Payload.PaymentStatus)
			result.Ignored = true
			return nil
		}
		res, err := s.HandleConfirmedPayment(ctx, event.Payload.Confirmed(s.now()))
		if err != nil {
			return err
		}
		result.PlanID = res.Plan.ID
		result.Created = res.Created
		return nil
	case EventPaymentSucceeded:
		log.Infof("[Billing] Payment intent %s succeeded (%d %s)",
			event.Payload.PaymentIntentID, event.Payload.AmountTotal, event.Payload.Currency)
		return nil
	case EventPaymentFailed:
		log.Warnf("[Billing] Payment %s%s failed: %s",
			event.Payload.PaymentIntentID, event.Payload.SessionID, event.Payload.FailureMessage)
		return nil
	default:
		log.Debugf("[Billing] Ignoring webhook event %s of type %s", event.ID, event.GatewayType)
		result.Ignored = true
		return nil
	}
}

// VerifyCheckoutSession re-reads a checkout session from the gateway and
// processes it idempotently once it is paid.
func (s *Service) VerifyCheckoutSession(ctx context.Context, fetcher CheckoutSessionFetcher, sessionID string) (*ProcessResult, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, ErrMissingSessionID
	}
	payload, err := fetcher.GetCheckoutSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payload.IsPaid() {
		return nil, ErrPaymentNotPaid
	}
	return s.HandleConfirmedPayment(ctx, payload.Confirmed(s.now()))
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
