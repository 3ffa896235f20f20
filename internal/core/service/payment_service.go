package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/license"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

const (
	maxKeyAttempts        = 3
	defaultGatewayTimeout = 10 * time.Second
)

// PaymentConfig holds the tunables of PaymentService.
type PaymentConfig struct {
	ServiceSecret  string
	KeyTTL         time.Duration
	GatewayTimeout time.Duration
}

// PaymentService creates purchases and reconciles gateway confirmations.
type PaymentService struct {
	store    ports.Store
	gateway  ports.PaymentGateway
	delivery ports.ActivationDelivery
	replay   ports.ReplayGuard
	audit    auditor
	cfg      PaymentConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewPaymentService wires the payment flow. delivery and replay may be nil.
func NewPaymentService(
	store ports.Store,
	gateway ports.PaymentGateway,
	delivery ports.ActivationDelivery,
	replay ports.ReplayGuard,
	audit ports.AuditLog,
	cfg PaymentConfig,
	log zerolog.Logger,
) *PaymentService {
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = domain.KeyTTL
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		delivery: delivery,
		replay:   replay,
		audit:    auditor{sink: audit, log: log},
		cfg:      cfg,
		log:      log,
		now:      utcNow,
	}
}

// CreatePendingPurchase records a pending subscription and payment with a fresh key
// pair bound to deviceHash, then asks the gateway for a checkout URL. Nothing is
// activated here.
func (s *PaymentService) CreatePendingPurchase(ctx context.Context, userID int64, planType, deviceHash string) (*domain.PurchaseIntent, error) {
	plan, err := domain.ParsePlan(planType)
	if err != nil {
		return nil, err
	}
	deviceHash = strings.TrimSpace(deviceHash)
	if deviceHash == "" {
		return nil, fmt.Errorf("%w: device_hash is required", domain.ErrValidation)
	}

	now := s.now()
	var (
		payment *domain.Payment
		user    *domain.User
	)
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		serverKey, genErr := license.GenerateServerKey()
		if genErr != nil {
			return nil, genErr
		}
		clientKey := license.DeriveClientKey([]byte(s.cfg.ServiceSecret), serverKey, deviceHash)

		err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			if err := tx.LockUser(ctx, userID); err != nil {
				return err
			}
			u, err := tx.Users().FindByID(ctx, userID)
			if err != nil {
				return err
			}
			sub, err := tx.Subscriptions().Create(ctx, domain.NewSubscription(userID, plan, plan.Price(), now))
			if err != nil {
				return err
			}
			created, err := tx.Payments().Create(ctx, &domain.Payment{
				UserID:         userID,
				SubscriptionID: sub.ID,
				Plan:           plan,
				Amount:         plan.Price(),
				Currency:       domain.Currency,
				Status:         domain.PaymentPending,
				Method:         s.gateway.Method(),
				ServerKey:      serverKey,
				ClientKey:      clientKey,
				KeyExpiresAt:   now.Add(s.cfg.KeyTTL),
				CreatedAt:      now,
			})
			if err != nil {
				return err
			}
			user, payment = u, created
			return nil
		})
		if !errors.Is(err, domain.ErrKeyCollision) {
			break
		}
		s.log.Warn().Int("attempt", attempt+1).Msg("activation key collision, regenerating")
	}
	if err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	intent := &domain.PurchaseIntent{
		PaymentID:      payment.ID,
		SubscriptionID: payment.SubscriptionID,
		Plan:           plan,
		Label:          payment.Label(),
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Description:    plan.Title(),
		ServerKey:      payment.ServerKey,
		ClientKey:      payment.ClientKey,
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	url, err := s.gateway.CreateCheckout(gwCtx, ports.CheckoutRequest{
		PaymentID:   payment.ID,
		Label:       intent.Label,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		Description: intent.Description,
		Email:       user.Email,
	})
	if err != nil {
		s.log.Error().Err(err).
			Int64("payment_id", payment.ID).
			Str("gateway", string(s.gateway.Method())).
			Msg("checkout creation failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	intent.PaymentURL = url

	s.log.Info().
		Int64("user_id", userID).
		Int64("payment_id", payment.ID).
		Str("plan", string(plan)).
		Str("key", logger.MaskKey(payment.ServerKey)).
		Msg("purchase created")
	s.audit.record(ctx, &domain.LicenseEvent{
		Type:       domain.EventPurchaseCreated,
		UserID:     userID,
		PaymentID:  payment.ID,
		DeviceHash: deviceHash,
		Amount:     payment.Amount,
		OccurredAt: now,
	})
	return intent, nil
}

// ReconcileWebhook applies a gateway confirmation to the payment named by the label.
// Confirmations for already settled payments are acknowledged without changes.
func (s *PaymentService) ReconcileWebhook(ctx context.Context, in ports.WebhookInput) error {
	paymentID, err := domain.ParseLabel(in.Label)
	if err != nil {
		return err
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be a positive number", domain.ErrValidation)
	}

	if in.TransactionID != "" && s.replay != nil {
		dup, err := s.replay.IsDuplicate(ctx, in.TransactionID)
		if err != nil {
			s.log.Warn().Err(err).Str("operation_id", in.TransactionID).Msg("replay check failed, processing anyway")
		} else if dup {
			s.log.Debug().Str("operation_id", in.TransactionID).Msg("duplicate webhook skipped")
			return nil
		}
	}

	now := s.now()
	var (
		payment *domain.Payment
		user    *domain.User
		sub     *domain.Subscription
		settled bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		p, err := tx.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = p
		if p.Status.Settled() {
			settled = true
			return nil
		}
		if !p.AmountMatches(in.Amount) {
			return fmt.Errorf("%w: expected %.2f, got %.2f", domain.ErrAmountMismatch, p.Amount, in.Amount)
		}

		if err := tx.LockUser(ctx, p.UserID); err != nil {
			return err
		}
		if user, err = tx.Users().FindByID(ctx, p.UserID); err != nil {
			return err
		}
		if sub, err = tx.Subscriptions().FindByID(ctx, p.SubscriptionID); err != nil {
			return err
		}

		if err := p.Transition(domain.PaymentCompleted, now); err != nil {
			return err
		}
		p.TransactionID = in.TransactionID
		if err := tx.Payments().UpdateStatus(ctx, p); err != nil {
			return err
		}

		// A late confirmation of an older purchase must not displace a
		// subscription bought after it.
		current, err := tx.Subscriptions().FindActive(ctx, p.UserID, now)
		switch {
		case errors.Is(err, domain.ErrSubscriptionNotFound):
		case err != nil:
			return err
		case current.ID > sub.ID:
			s.log.Info().
				Int64("payment_id", p.ID).
				Int64("subscription_id", sub.ID).
				Int64("active_subscription_id", current.ID).
				Msg("newer subscription already active, keeping it")
			return nil
		}
		return activateSubscription(ctx, tx, sub)
	})
	if err != nil {
		if payment != nil {
			s.log.Warn().Err(err).Int64("payment_id", payment.ID).Float64("amount", in.Amount).Msg("webhook rejected")
			s.audit.record(ctx, &domain.LicenseEvent{
				Type:       domain.EventPaymentRejected,
				UserID:     payment.UserID,
				PaymentID:  payment.ID,
				Amount:     in.Amount,
				Reason:     err.Error(),
				OccurredAt: now,
			})
		}
		return fmt.Errorf("reconcile webhook: %w", err)
	}

	s.markReplay(ctx, in.TransactionID)
	if settled {
		s.log.Info().Int64("payment_id", payment.ID).Str("status", string(payment.Status)).Msg("webhook for settled payment acknowledged")
		return nil
	}

	s.log.Info().
		Int64("user_id", payment.UserID).
		Int64("payment_id", payment.ID).
		Str("operation_id", in.TransactionID).
		Msg("payment completed")
	s.audit.record(ctx, &domain.LicenseEvent{
		Type:       domain.EventPaymentCompleted,
		UserID:     payment.UserID,
		PaymentID:  payment.ID,
		Amount:     in.Amount,
		OccurredAt: now,
	})

	// Delivery is a separate side effect: the payment stays completed whatever happens here.
	if s.delivery != nil {
		err := s.delivery.Deliver(ports.ActivationMail{
			UserID:        payment.UserID,
			PaymentID:     payment.ID,
			To:            user.Email,
			ActivationKey: payment.ClientKey,
			Plan:          sub.Plan,
			ValidUntil:    sub.EndsAt,
		})
		if err != nil {
			s.log.Error().Err(err).Int64("payment_id", payment.ID).Msg("activation key delivery not scheduled")
		}
	}
	return nil
}

func (s *PaymentService) markReplay(ctx context.Context, operationID string) {
	if operationID == "" || s.replay == nil {
		return
	}
	if err := s.replay.Mark(ctx, operationID); err != nil {
		s.log.Warn().Err(err).Str("operation_id", operationID).Msg("failed to remember operation id")
	}
}
