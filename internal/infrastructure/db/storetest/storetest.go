// Package storetest holds the behaviour every ports.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) ports.Store

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the shared store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("RollbackOnPanic", func(t *testing.T) { testRollbackOnPanic(t, newStore(t)) })
	t.Run("Devices", func(t *testing.T) { testDevices(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("Payments", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("ConcurrentDeviceCap", func(t *testing.T) { testConcurrentDeviceCap(t, newStore(t)) })
}

func inTx(t *testing.T, s ports.Store, fn func(ctx context.Context, tx ports.Tx)) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		fn(ctx, tx)
		return nil
	})
	require.NoError(t, err)
}

func createUser(t *testing.T, s ports.Store, email string) *domain.User {
	t.Helper()
	var u *domain.User
	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		var err error
		u, err = tx.Users().Create(ctx, &domain.User{Email: email, PasswordHash: "hash", CreatedAt: now})
		require.NoError(t, err)
	})
	return u
}

func testUsers(t *testing.T, s ports.Store) {
	u := createUser(t, s, "a@x.com")
	assert.NotZero(t, u.ID)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.Users().Create(ctx, &domain.User{Email: "a@x.com", PasswordHash: "h", CreatedAt: now})
		return err
	})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)

	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		require.NoError(t, tx.LockUser(ctx, u.ID))
		require.ErrorIs(t, tx.LockUser(ctx, u.ID+1000), domain.ErrUserNotFound)

		byEmail, err := tx.Users().FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, "hash", byEmail.PasswordHash)
		assert.Nil(t, byEmail.LastLogin)

		_, err = tx.Users().FindByEmail(ctx, "A@x.com")
		require.ErrorIs(t, err, domain.ErrUserNotFound)

		require.NoError(t, tx.Users().TouchLastLogin(ctx, u.ID, now.Add(time.Hour)))
		byID, err := tx.Users().FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, byID.LastLogin)
		assert.True(t, byID.LastLogin.Equal(now.Add(time.Hour)))
	})
}

func testRollback(t *testing.T, s ports.Store) {
	boom := errors.New("boom")
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if _, err := tx.Users().Create(ctx, &domain.User{Email: "gone@x.com", PasswordHash: "h", CreatedAt: now}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		_, err := tx.Users().FindByEmail(ctx, "gone@x.com")
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func testRollbackOnPanic(t *testing.T, s ports.Store) {
	func() {
		defer func() {
			require.NotNil(t, recover(), "panic must reach the caller")
		}()
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
			if _, err := tx.Users().Create(ctx, &domain.User{Email: "panic@x.com", PasswordHash: "h", CreatedAt: now}); err != nil {
				return err
			}
			panic("handler bug")
		})
	}()

	// A leaked transaction would hold the store; bound the wait so that shows
	// up as an error instead of a hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.Users().FindByEmail(ctx, "panic@x.com")
		return err
	})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func testDevices(t *testing.T, s ports.Store) {
	u := createUser(t, s, "a@x.com")

	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		devices := tx.Devices()

		_, err := devices.FindByFingerprint(ctx, u.ID, "fp-1")
		require.ErrorIs(t, err, domain.ErrDeviceNotFound)

		first, err := devices.Upsert(ctx, &domain.Device{UserID: u.ID, Fingerprint: "fp-1", Name: "One", Active: true, LastActive: now})
		require.NoError(t, err)
		_, err = devices.Upsert(ctx, &domain.Device{UserID: u.ID, Fingerprint: "fp-2", Name: "Two", Active: true, LastActive: now.Add(time.Minute)})
		require.NoError(t, err)

		again, err := devices.Upsert(ctx, &domain.Device{UserID: u.ID, Fingerprint: "fp-1", Name: "Renamed", Active: true, LastActive: now.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)

		list, err := devices.ListActive(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "fp-1", list[0].Fingerprint)
		assert.Equal(t, "Renamed", list[0].Name)
		assert.Equal(t, "fp-2", list[1].Fingerprint)

		removed, err := devices.Deactivate(ctx, u.ID, "fp-2")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = devices.Deactivate(ctx, u.ID, "fp-2")
		require.NoError(t, err)
		assert.False(t, removed)

		n, err := devices.CountActive(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		inactive, err := devices.FindByFingerprint(ctx, u.ID, "fp-2")
		require.NoError(t, err)
		assert.False(t, inactive.Active)
	})
}

func testSubscriptions(t *testing.T, s ports.Store) {
	u := createUser(t, s, "a@x.com")
	ctx := context.Background()

	var first, second *domain.Subscription
	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		subs := tx.Subscriptions()
		var err error
		first, err = subs.Create(ctx, &domain.Subscription{UserID: u.ID, Plan: domain.PlanMonthly, Price: 299, StartsAt: now, EndsAt: now.Add(time.Hour), Active: true})
		require.NoError(t, err)
		second, err = subs.Create(ctx, &domain.Subscription{UserID: u.ID, Plan: domain.PlanYearly, Price: 2990, StartsAt: now, EndsAt: now.Add(2 * time.Hour)})
		require.NoError(t, err)

		found, err := subs.FindByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanYearly, found.Plan)
		assert.True(t, found.EndsAt.Equal(now.Add(2*time.Hour)))
		assert.False(t, found.Active)
	})

	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Subscriptions().Activate(ctx, second.ID)
	})
	require.ErrorIs(t, err, domain.ErrActiveSubscriptionSet)

	err = s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.Subscriptions().Create(ctx, &domain.Subscription{UserID: u.ID, Plan: domain.PlanMonthly, StartsAt: now, EndsAt: now.Add(time.Hour), Active: true})
		return err
	})
	require.ErrorIs(t, err, domain.ErrActiveSubscriptionSet)

	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		subs := tx.Subscriptions()
		n, err := subs.DeactivateOthers(ctx, u.ID, second.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		require.NoError(t, subs.Activate(ctx, second.ID))
		require.ErrorIs(t, subs.Activate(ctx, second.ID+1000), domain.ErrSubscriptionNotFound)

		active, err := subs.FindActive(ctx, u.ID, now)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)

		_, err = subs.FindActive(ctx, u.ID, now.Add(2*time.Hour))
		require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

		swept, err := subs.DeactivateExpired(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, swept)

		_, err = subs.FindByID(ctx, first.ID+second.ID+1000)
		require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	})
}

func testPayments(t *testing.T, s ports.Store) {
	u := createUser(t, s, "a@x.com")
	ctx := context.Background()

	var payment *domain.Payment
	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		sub, err := tx.Subscriptions().Create(ctx, domain.NewSubscription(u.ID, domain.PlanMonthly, 299, now))
		require.NoError(t, err)
		payment, err = tx.Payments().Create(ctx, &domain.Payment{
			UserID:         u.ID,
			SubscriptionID: sub.ID,
			Plan:           domain.PlanMonthly,
			Amount:         299,
			Currency:       domain.Currency,
			Status:         domain.PaymentPending,
			Method:         domain.MethodQuickpay,
			ServerKey:      "AAAA-BBBB-CCCC-DDDD",
			ClientKey:      "EEEE-FFFF-GGGG-HHHH",
			KeyExpiresAt:   now.Add(domain.KeyTTL),
			CreatedAt:      now,
		})
		require.NoError(t, err)
		assert.NotZero(t, payment.ID)
	})

	for _, dup := range []domain.Payment{
		{ServerKey: "AAAA-BBBB-CCCC-DDDD", ClientKey: "ZZZZ-ZZZZ-ZZZZ-ZZZZ"},
		{ServerKey: "ZZZZ-ZZZZ-ZZZZ-ZZZZ", ClientKey: "EEEE-FFFF-GGGG-HHHH"},
	} {
		dup := dup
		dup.UserID, dup.SubscriptionID = u.ID, payment.SubscriptionID
		dup.Plan, dup.Amount, dup.Currency = domain.PlanMonthly, 299, domain.Currency
		dup.Status, dup.Method = domain.PaymentPending, domain.MethodQuickpay
		dup.KeyExpiresAt, dup.CreatedAt = now.Add(domain.KeyTTL), now
		err := s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			_, err := tx.Payments().Create(ctx, &dup)
			return err
		})
		require.ErrorIs(t, err, domain.ErrKeyCollision, fmt.Sprintf("%s/%s", dup.ServerKey, dup.ClientKey))
	}

	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		payments := tx.Payments()
		byServer, err := payments.FindByServerKey(ctx, "AAAA-BBBB-CCCC-DDDD")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, byServer.ID)
		assert.True(t, byServer.KeyExpiresAt.Equal(now.Add(domain.KeyTTL)))

		byClient, err := payments.FindByClientKey(ctx, "EEEE-FFFF-GGGG-HHHH")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, byClient.ID)

		_, err = payments.FindByServerKey(ctx, "EEEE-FFFF-GGGG-HHHH")
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)

		require.NoError(t, byClient.Transition(domain.PaymentCompleted, now.Add(time.Minute)))
		byClient.TransactionID = "op-1"
		require.NoError(t, payments.UpdateStatus(ctx, byClient))

		reloaded, err := payments.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentCompleted, reloaded.Status)
		assert.Equal(t, "op-1", reloaded.TransactionID)
		require.NotNil(t, reloaded.PaidAt)
		assert.True(t, reloaded.PaidAt.Equal(now.Add(time.Minute)))
		assert.Nil(t, reloaded.ActivatedAt)

		_, err = payments.FindByID(ctx, payment.ID+1000)
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})
}

// testConcurrentDeviceCap checks that LockUser serializes check-then-insert.
func testConcurrentDeviceCap(t *testing.T, s ports.Store) {
	u := createUser(t, s, "a@x.com")
	const attempts = 10

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		fp := fmt.Sprintf("fp-%d", i)
		g.Go(func() error {
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
				if err := tx.LockUser(ctx, u.ID); err != nil {
					return err
				}
				n, err := tx.Devices().CountActive(ctx, u.ID)
				if err != nil {
					return err
				}
				if n >= domain.MaxActiveDevices {
					return domain.ErrDeviceLimitReached
				}
				_, err = tx.Devices().Upsert(ctx, &domain.Device{UserID: u.ID, Fingerprint: fp, Name: fp, Active: true, LastActive: now})
				return err
			})
			if errors.Is(err, domain.ErrDeviceLimitReached) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	inTx(t, s, func(ctx context.Context, tx ports.Tx) {
		n, err := tx.Devices().CountActive(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MaxActiveDevices, n)
	})
}
