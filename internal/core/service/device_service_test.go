package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

func TestDeviceService_Register_Idempotent(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()

	first, err := f.devices.Register(ctx, user.ID, "dev-1", "Laptop")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", first.Name)

	f.clock.Advance(time.Minute)
	again, err := f.devices.Register(ctx, user.ID, "dev-1", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Laptop", again.Name, "empty name keeps the existing one")
	assert.True(t, again.LastActive.Equal(f.clock.Now()))

	assert.Len(t, activeDevices(t, f.store, user.ID), 1)
	assert.Equal(t, []domain.LicenseEventType{domain.EventDeviceBound}, f.audit.types())
}

func TestDeviceService_Register_DefaultName(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")

	d, err := f.devices.Register(context.Background(), user.ID, "dev-1", "  ")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDeviceName, d.Name)
}

func TestDeviceService_Register_CapReached(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()

	for i := 1; i <= domain.MaxActiveDevices; i++ {
		_, err := f.devices.Register(ctx, user.ID, fmt.Sprintf("dev-%d", i), "")
		require.NoError(t, err)
	}

	_, err := f.devices.Register(ctx, user.ID, "dev-5", "")
	require.ErrorIs(t, err, domain.ErrDeviceLimitReached)
	assert.Len(t, activeDevices(t, f.store, user.ID), domain.MaxActiveDevices)

	// A known active device is still accepted at the cap.
	_, err = f.devices.Register(ctx, user.ID, "dev-2", "")
	require.NoError(t, err)
}

func TestDeviceService_Register_ReactivationCountsAgainstCap(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()

	for i := 1; i <= domain.MaxActiveDevices; i++ {
		_, err := f.devices.Register(ctx, user.ID, fmt.Sprintf("dev-%d", i), "")
		require.NoError(t, err)
	}
	removed, err := f.devices.Remove(ctx, user.ID, "dev-1")
	require.NoError(t, err)
	require.True(t, removed)

	_, err = f.devices.Register(ctx, user.ID, "dev-5", "")
	require.NoError(t, err)

	_, err = f.devices.Register(ctx, user.ID, "dev-1", "")
	require.ErrorIs(t, err, domain.ErrDeviceLimitReached)
}

func TestDeviceService_Register_Reactivates(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	ctx := context.Background()

	first, err := f.devices.Register(ctx, user.ID, "dev-1", "Desktop")
	require.NoError(t, err)
	_, err = f.devices.Remove(ctx, user.ID, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, activeDevices(t, f.store, user.ID))

	again, err := f.devices.Register(ctx, user.ID, "dev-1", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Desktop", again.Name)
	assert.Len(t, activeDevices(t, f.store, user.ID), 1)
}

func TestDeviceService_Register_Validation(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")

	_, err := f.devices.Register(context.Background(), user.ID, " ", "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeviceService_Register_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.devices.Register(context.Background(), 999, "dev-1", "")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDeviceService_List_MostRecentFirst(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	other := seedUser(t, f.store, "b@x.com")
	ctx := context.Background()

	for _, fp := range []string{"old", "mid", "new"} {
		_, err := f.devices.Register(ctx, user.ID, fp, "")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	_, err := f.devices.Register(ctx, other.ID, "foreign", "")
	require.NoError(t, err)

	devices, err := f.devices.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "new", devices[0].Fingerprint)
	assert.Equal(t, "mid", devices[1].Fingerprint)
	assert.Equal(t, "old", devices[2].Fingerprint)
}

func TestDeviceService_Remove(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")
	other := seedUser(t, f.store, "b@x.com")
	ctx := context.Background()

	_, err := f.devices.Register(ctx, user.ID, "dev-1", "")
	require.NoError(t, err)

	removed, err := f.devices.Remove(ctx, other.ID, "dev-1")
	require.NoError(t, err)
	assert.False(t, removed, "a device owned by someone else is not affected")

	removed, err = f.devices.Remove(ctx, user.ID, "dev-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.devices.Remove(ctx, user.ID, "dev-1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.devices.Remove(ctx, user.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeviceService_Register_ConcurrentCap(t *testing.T) {
	f := newFixture(t)
	user := seedUser(t, f.store, "a@x.com")

	const attempts = 12
	var ok, limited atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		fp := fmt.Sprintf("dev-%d", i)
		g.Go(func() error {
			_, err := f.devices.Register(context.Background(), user.ID, fp, "")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrDeviceLimitReached):
				limited.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, domain.MaxActiveDevices, ok.Load())
	assert.EqualValues(t, attempts-domain.MaxActiveDevices, limited.Load())
	assert.Len(t, activeDevices(t, f.store, user.ID), domain.MaxActiveDevices)
}
