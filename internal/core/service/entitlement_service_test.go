package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

func TestEntitlementService_CheckSubscription_BindsDevice(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()
	_, err := f.subs.Create(ctx, user.ID, domain.PlanMonthly, 299)
	require.NoError(t, err)

	f.clock.Advance(36 * time.Hour)
	summary, err := f.entitlements.CheckSubscription(ctx, user.ID, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 29, summary.DaysLeft, "a partial day counts as a whole one")
	assert.Equal(t, t0.Add(30*24*time.Hour), summary.EndsAt)

	_, err = f.entitlements.CheckSubscription(ctx, user.ID, "dev-1")
	require.NoError(t, err)
	assert.Len(t, activeDevices(t, f.store, user.ID), 1)
	assert.Equal(t, []domain.LicenseEventType{domain.EventDeviceBound}, f.audit.types())
}

func TestEntitlementService_CheckSubscription_NoDeviceHash(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()
	_, err := f.subs.Create(ctx, user.ID, domain.PlanYearly, 2990)
	require.NoError(t, err)

	summary, err := f.entitlements.CheckSubscription(ctx, user.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, 365, summary.DaysLeft)
	assert.Empty(t, activeDevices(t, f.store, user.ID))
}

func TestEntitlementService_CheckSubscription_Denied(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()

	_, err := f.entitlements.CheckSubscription(ctx, user.ID, "dev-1")
	require.ErrorIs(t, err, domain.ErrNoActiveSubscription)
	assert.Empty(t, activeDevices(t, f.store, user.ID), "no binding without entitlement")

	_, err = f.subs.Create(ctx, user.ID, domain.PlanMonthly, 299)
	require.NoError(t, err)
	f.clock.Advance(30 * 24 * time.Hour)
	_, err = f.entitlements.CheckSubscription(ctx, user.ID, "dev-1")
	require.ErrorIs(t, err, domain.ErrNoActiveSubscription)

	_, err = f.entitlements.CheckSubscription(ctx, 404, "dev-1")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestEntitlementService_CheckSubscription_DeviceCap(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()
	_, err := f.subs.Create(ctx, user.ID, domain.PlanMonthly, 299)
	require.NoError(t, err)
	for i := 0; i < domain.MaxActiveDevices; i++ {
		_, err := f.entitlements.CheckSubscription(ctx, user.ID, fmt.Sprintf("dev-%d", i))
		require.NoError(t, err)
	}

	_, err = f.entitlements.CheckSubscription(ctx, user.ID, "dev-extra")
	require.ErrorIs(t, err, domain.ErrDeviceLimitReached)

	_, err = f.entitlements.CheckSubscription(ctx, user.ID, "dev-0")
	require.NoError(t, err)
}

func TestEntitlementService_AccountInfo(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()

	info, err := f.entitlements.AccountInfo(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", info.User.Email)
	assert.Nil(t, info.Subscription)
	assert.Empty(t, info.Devices)

	sub, err := f.subs.Create(ctx, user.ID, domain.PlanMonthly, 299)
	require.NoError(t, err)
	_, err = f.devices.Register(ctx, user.ID, "dev-1", "Phone")
	require.NoError(t, err)

	info, err = f.entitlements.AccountInfo(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, info.Subscription)
	assert.Equal(t, sub.ID, info.Subscription.ID)
	require.Len(t, info.Devices, 1)
	assert.Equal(t, "Phone", info.Devices[0].Name)

	f.clock.Advance(31 * 24 * time.Hour)
	info, err = f.entitlements.AccountInfo(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, info.Subscription, "an expired period is not reported")

	_, err = f.entitlements.AccountInfo(ctx, 404)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
