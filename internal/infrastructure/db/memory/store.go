// Package memory is an in-process ports.Store for local development and tests.
// Transactions are fully serialized and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

type state struct {
	nextID   int64
	users    map[int64]domain.User
	devices  map[int64]domain.Device
	subs     map[int64]domain.Subscription
	payments map[int64]domain.Payment
}

func newState() *state {
	return &state{
		users:    make(map[int64]domain.User),
		devices:  make(map[int64]domain.Device),
		subs:     make(map[int64]domain.Subscription),
		payments: make(map[int64]domain.Payment),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.devices {
		c.devices[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store implements ports.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

// WithinTx implements ports.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
	}()
	if err := fn(ctx, &tx{st: s.state}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type tx struct {
	st *state
}

func (t *tx) LockUser(_ context.Context, userID int64) error {
	if _, ok := t.st.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *tx) Users() ports.UserRepository                 { return userRepo{t.st} }
func (t *tx) Devices() ports.DeviceRepository             { return deviceRepo{t.st} }
func (t *tx) Subscriptions() ports.SubscriptionRepository { return subscriptionRepo{t.st} }
func (t *tx) Payments() ports.PaymentRepository           { return paymentRepo{t.st} }

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userRepo struct{ st *state }

func (r userRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	for _, u := range r.st.users {
		if u.Email == user.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	u := *user
	u.ID = r.st.id()
	r.st.users[u.ID] = u
	return &u, nil
}

func (r userRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r userRepo) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	u, ok := r.st.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLogin = &at
	r.st.users[id] = u
	return nil
}

// ---------------------------------------------------------------------------
// Devices
// ---------------------------------------------------------------------------

type deviceRepo struct{ st *state }

func (r deviceRepo) ListActive(_ context.Context, userID int64) ([]domain.Device, error) {
	out := make([]domain.Device, 0, domain.MaxActiveDevices)
	for _, d := range r.st.devices {
		if d.UserID == userID && d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

func (r deviceRepo) CountActive(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, d := range r.st.devices {
		if d.UserID == userID && d.Active {
			n++
		}
	}
	return n, nil
}

func (r deviceRepo) FindByFingerprint(_ context.Context, userID int64, fingerprint string) (*domain.Device, error) {
	for _, d := range r.st.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint {
			return &d, nil
		}
	}
	return nil, domain.ErrDeviceNotFound
}

func (r deviceRepo) Upsert(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	if existing, err := r.FindByFingerprint(ctx, device.UserID, device.Fingerprint); err == nil {
		existing.Name = device.Name
		existing.Active = device.Active
		existing.LastActive = device.LastActive
		r.st.devices[existing.ID] = *existing
		return existing, nil
	}
	d := *device
	d.ID = r.st.id()
	r.st.devices[d.ID] = d
	return &d, nil
}

func (r deviceRepo) Deactivate(_ context.Context, userID int64, fingerprint string) (bool, error) {
	for id, d := range r.st.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint && d.Active {
			d.Active = false
			r.st.devices[id] = d
			return true, nil
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

type subscriptionRepo struct{ st *state }

func (r subscriptionRepo) hasOtherActive(userID, id int64) bool {
	for _, s := range r.st.subs {
		if s.UserID == userID && s.Active && s.ID != id {
			return true
		}
	}
	return false
}

func (r subscriptionRepo) Create(_ context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	if sub.Active && r.hasOtherActive(sub.UserID, 0) {
		return nil, domain.ErrActiveSubscriptionSet
	}
	s := *sub
	s.ID = r.st.id()
	r.st.subs[s.ID] = s
	return &s, nil
}

func (r subscriptionRepo) FindByID(_ context.Context, id int64) (*domain.Subscription, error) {
	s, ok := r.st.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return &s, nil
}

func (r subscriptionRepo) FindActive(_ context.Context, userID int64, now time.Time) (*domain.Subscription, error) {
	for _, s := range r.st.subs {
		if s.UserID == userID && s.ValidAt(now) {
			return &s, nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (r subscriptionRepo) DeactivateOthers(_ context.Context, userID, keepID int64) (int64, error) {
	var n int64
	for id, s := range r.st.subs {
		if s.UserID == userID && s.Active && id != keepID {
			s.Active = false
			r.st.subs[id] = s
			n++
		}
	}
	return n, nil
}

func (r subscriptionRepo) Activate(_ context.Context, id int64) error {
	s, ok := r.st.subs[id]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	if r.hasOtherActive(s.UserID, id) {
		return domain.ErrActiveSubscriptionSet
	}
	s.Active = true
	r.st.subs[id] = s
	return nil
}

func (r subscriptionRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range r.st.subs {
		if s.Active && !now.Before(s.EndsAt) {
			s.Active = false
			r.st.subs[id] = s
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

type paymentRepo struct{ st *state }

func (r paymentRepo) Create(_ context.Context, payment *domain.Payment) (*domain.Payment, error) {
	for _, p := range r.st.payments {
		if p.ServerKey == payment.ServerKey || (payment.ClientKey != "" && p.ClientKey == payment.ClientKey) {
			return nil, domain.ErrKeyCollision
		}
	}
	p := *payment
	p.ID = r.st.id()
	r.st.payments[p.ID] = p
	return &p, nil
}

func (r paymentRepo) FindByID(_ context.Context, id int64) (*domain.Payment, error) {
	p, ok := r.st.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (r paymentRepo) FindByServerKey(_ context.Context, key string) (*domain.Payment, error) {
	for _, p := range r.st.payments {
		if p.ServerKey == key {
			return &p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r paymentRepo) FindByClientKey(_ context.Context, key string) (*domain.Payment, error) {
	for _, p := range r.st.payments {
		if p.ClientKey != "" && p.ClientKey == key {
			return &p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r paymentRepo) UpdateStatus(_ context.Context, payment *domain.Payment) error {
	p, ok := r.st.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.Status = payment.Status
	p.TransactionID = payment.TransactionID
	p.PaidAt = payment.PaidAt
	p.ActivatedAt = payment.ActivatedAt
	r.st.payments[p.ID] = p
	return nil
}
