package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/internal/infrastructure/db/memory"
)

const testServiceSecret = "test-service-secret"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: t0} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubGateway struct {
	mu       sync.Mutex
	url      string
	err      error
	requests []ports.CheckoutRequest
}

func (g *stubGateway) Method() domain.PaymentMethod { return domain.MethodQuickpay }

func (g *stubGateway) CreateCheckout(_ context.Context, req ports.CheckoutRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if g.url != "" {
		return g.url, nil
	}
	return "https://pay.example.com/checkout?label=" + req.Label, nil
}

type stubDelivery struct {
	mu    sync.Mutex
	err   error
	mails []ports.ActivationMail
}

func (d *stubDelivery) Deliver(mail ports.ActivationMail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.mails = append(d.mails, mail)
	return nil
}

type stubReplay struct {
	mu       sync.Mutex
	checkErr error
	seen     map[string]bool
}

func newStubReplay() *stubReplay { return &stubReplay{seen: make(map[string]bool)} }

func (r *stubReplay) IsDuplicate(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checkErr != nil {
		return false, r.checkErr
	}
	return r.seen[id], nil
}

func (r *stubReplay) Mark(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[id] = true
	return nil
}

type stubAudit struct {
	mu     sync.Mutex
	err    error
	events []domain.LicenseEvent
}

func (a *stubAudit) Record(_ context.Context, e *domain.LicenseEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, *e)
	return nil
}

func (a *stubAudit) types() []domain.LicenseEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.LicenseEventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

// ---------------------------------------------------------------------------
// Store helpers
// ---------------------------------------------------------------------------

func seedUser(t *testing.T, store ports.Store, email string) *domain.User {
	t.Helper()
	var user *domain.User
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		user, err = tx.Users().Create(ctx, &domain.User{Email: email, PasswordHash: "x", CreatedAt: t0})
		return err
	})
	require.NoError(t, err)
	return user
}

func loadPayment(t *testing.T, store ports.Store, id int64) *domain.Payment {
	t.Helper()
	var p *domain.Payment
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		p, err = tx.Payments().FindByID(ctx, id)
		return err
	})
	require.NoError(t, err)
	return p
}

func loadSubscription(t *testing.T, store ports.Store, id int64) *domain.Subscription {
	t.Helper()
	var s *domain.Subscription
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		s, err = tx.Subscriptions().FindByID(ctx, id)
		return err
	})
	require.NoError(t, err)
	return s
}

func activeDevices(t *testing.T, store ports.Store, userID int64) []domain.Device {
	t.Helper()
	var devices []domain.Device
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		devices, err = tx.Devices().ListActive(ctx, userID)
		return err
	})
	require.NoError(t, err)
	return devices
}

// countActiveSubscriptions counts the active rows among ids.
func countActiveSubscriptions(t *testing.T, store ports.Store, userID int64, ids []int64) int {
	t.Helper()
	n := 0
	for _, id := range ids {
		if s := loadSubscription(t, store, id); s.UserID == userID && s.Active {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Fixture: every service over one memory store and one clock.
// ---------------------------------------------------------------------------

type fixture struct {
	store        *memory.Store
	clock        *testClock
	gateway      *stubGateway
	delivery     *stubDelivery
	replay       *stubReplay
	audit        *stubAudit
	devices      *DeviceService
	subs         *SubscriptionService
	entitlements *EntitlementService
	activations  *ActivationService
	payments     *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		clock:    newTestClock(),
		gateway:  &stubGateway{},
		delivery: &stubDelivery{},
		replay:   newStubReplay(),
		audit:    &stubAudit{},
	}
	log := zerolog.Nop()

	f.devices = NewDeviceService(f.store, f.audit, log)
	f.devices.now = f.clock.Now
	f.subs = NewSubscriptionService(f.store, log)
	f.subs.now = f.clock.Now
	f.entitlements = NewEntitlementService(f.store, f.audit, log)
	f.entitlements.now = f.clock.Now
	f.activations = NewActivationService(f.store, testServiceSecret, f.audit, log)
	f.activations.now = f.clock.Now
	f.payments = NewPaymentService(f.store, f.gateway, f.delivery, f.replay, f.audit,
		PaymentConfig{ServiceSecret: testServiceSecret}, log)
	f.payments.now = f.clock.Now
	return f
}

// purchase creates a pending purchase for a fresh user.
func (f *fixture) purchase(t *testing.T, email, plan, device string) (*domain.User, *domain.PurchaseIntent) {
	t.Helper()
	user := seedUser(t, f.store, email)
	intent, err := f.payments.CreatePendingPurchase(context.Background(), user.ID, plan, device)
	require.NoError(t, err)
	return user, intent
}

// complete confirms intent through the webhook with the exact amount.
func (f *fixture) complete(t *testing.T, intent *domain.PurchaseIntent, operationID string) {
	t.Helper()
	err := f.payments.ReconcileWebhook(context.Background(), ports.WebhookInput{
		Label:         intent.Label,
		Amount:        intent.Amount,
		TransactionID: operationID,
	})
	require.NoError(t, err)
}

var errBoom = errors.New("boom")
