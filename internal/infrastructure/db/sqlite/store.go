package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// Store implements ports.Store on database/sql.
type Store struct {
	db *sql.DB
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// No-op once committed; otherwise releases the only connection, including
	// when fn panics.
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

type tx struct {
	q *sql.Tx
}

// LockUser only checks existence: the single connection already serializes
// transactions.
func (t *tx) LockUser(ctx context.Context, userID int64) error {
	var id int64
	err := t.q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (t *tx) Users() ports.UserRepository                 { return userRepository{t.q} }
func (t *tx) Devices() ports.DeviceRepository             { return deviceRepository{t.q} }
func (t *tx) Subscriptions() ports.SubscriptionRepository { return subscriptionRepository{t.q} }
func (t *tx) Payments() ports.PaymentRepository           { return paymentRepository{t.q} }

// Times are stored as unix nanoseconds.

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

type scanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userRepository struct{ q *sql.Tx }

const userColumns = `id, email, password_hash, created_at, last_login`

func scanUser(row scanner) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
		lastLogin sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromUnix(createdAt)
	u.LastLogin = fromNullUnix(lastLogin)
	return &u, nil
}

func (r userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		user.Email, user.PasswordHash, toUnix(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r userRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, toUnix(at), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Devices
// ---------------------------------------------------------------------------

type deviceRepository struct{ q *sql.Tx }

const deviceColumns = `id, user_id, device_hash, device_name, is_active, last_active`

func scanDevice(row scanner) (domain.Device, error) {
	var (
		d          domain.Device
		lastActive int64
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.Name, &d.Active, &lastActive); err != nil {
		return domain.Device{}, err
	}
	d.LastActive = fromUnix(lastActive)
	return d, nil
}

func (r deviceRepository) ListActive(ctx context.Context, userID int64) ([]domain.Device, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM user_devices
		 WHERE user_id = ? AND is_active = 1
		 ORDER BY last_active DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Device, 0, domain.MaxActiveDevices)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r deviceRepository) CountActive(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_devices WHERE user_id = ? AND is_active = 1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}

func (r deviceRepository) FindByFingerprint(ctx context.Context, userID int64, fingerprint string) (*domain.Device, error) {
	d, err := scanDevice(r.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE user_id = ? AND device_hash = ?`,
		userID, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	return &d, nil
}

func (r deviceRepository) Upsert(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_devices (user_id, device_hash, device_name, is_active, last_active)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, device_hash) DO UPDATE SET
		     device_name = excluded.device_name,
		     is_active   = excluded.is_active,
		     last_active = excluded.last_active`,
		device.UserID, device.Fingerprint, device.Name, device.Active, toUnix(device.LastActive))
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return r.FindByFingerprint(ctx, device.UserID, device.Fingerprint)
}

func (r deviceRepository) Deactivate(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE user_devices SET is_active = 0 WHERE user_id = ? AND device_hash = ? AND is_active = 1`,
		userID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("deactivate device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate device: %w", err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

type subscriptionRepository struct{ q *sql.Tx }

const subscriptionColumns = `id, user_id, plan_type, price, start_date, end_date, is_active`

func scanSubscription(row scanner) (*domain.Subscription, error) {
	var (
		s          domain.Subscription
		plan       string
		start, end int64
	)
	if err := row.Scan(&s.ID, &s.UserID, &plan, &s.Price, &start, &end, &s.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	s.Plan = domain.Plan(plan)
	s.StartsAt = fromUnix(start)
	s.EndsAt = fromUnix(end)
	return &s, nil
}

func (r subscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_type, price, start_date, end_date, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.UserID, string(sub.Plan), sub.Price, toUnix(sub.StartsAt), toUnix(sub.EndsAt), sub.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrActiveSubscriptionSet
		}
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r subscriptionRepository) FindByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	return scanSubscription(r.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id))
}

func (r subscriptionRepository) FindActive(ctx context.Context, userID int64, now time.Time) (*domain.Subscription, error) {
	return scanSubscription(r.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = ? AND is_active = 1 AND end_date > ?
		 ORDER BY end_date DESC LIMIT 1`, userID, toUnix(now)))
}

func (r subscriptionRepository) DeactivateOthers(ctx context.Context, userID, keepID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE subscriptions SET is_active = 0 WHERE user_id = ? AND is_active = 1 AND id <> ?`,
		userID, keepID)
	if err != nil {
		return 0, fmt.Errorf("deactivate subscriptions: %w", err)
	}
	return res.RowsAffected()
}

func (r subscriptionRepository) Activate(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE subscriptions SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveSubscriptionSet
		}
		return fmt.Errorf("activate subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r subscriptionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE subscriptions SET is_active = 0 WHERE is_active = 1 AND end_date <= ?`, toUnix(now))
	if err != nil {
		return 0, fmt.Errorf("sweep subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

type paymentRepository struct{ q *sql.Tx }

const paymentColumns = `id, user_id, subscription_id, plan_type, amount, currency, status, method,
	transaction_id, server_key, client_key, key_expires_at, created_at, paid_at, activated_at`

func scanPayment(row scanner) (*domain.Payment, error) {
	var (
		p                       domain.Payment
		plan, status, method    string
		clientKey               sql.NullString
		keyExpiresAt, createdAt int64
		paidAt, activatedAt     sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.UserID, &p.SubscriptionID, &plan, &p.Amount, &p.Currency, &status, &method,
		&p.TransactionID, &p.ServerKey, &clientKey, &keyExpiresAt, &createdAt, &paidAt, &activatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Plan = domain.Plan(plan)
	p.Status = domain.PaymentStatus(status)
	p.Method = domain.PaymentMethod(method)
	p.ClientKey = clientKey.String
	p.KeyExpiresAt = fromUnix(keyExpiresAt)
	p.CreatedAt = fromUnix(createdAt)
	p.PaidAt = fromNullUnix(paidAt)
	p.ActivatedAt = fromNullUnix(activatedAt)
	return &p, nil
}

func (r paymentRepository) Create(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	clientKey := sql.NullString{String: payment.ClientKey, Valid: payment.ClientKey != ""}
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO payments (user_id, subscription_id, plan_type, amount, currency, status, method,
		     transaction_id, server_key, client_key, key_expires_at, created_at, paid_at, activated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.UserID, payment.SubscriptionID, string(payment.Plan), payment.Amount, payment.Currency,
		string(payment.Status), string(payment.Method), payment.TransactionID, payment.ServerKey, clientKey,
		toUnix(payment.KeyExpiresAt), toUnix(payment.CreatedAt), toNullUnix(payment.PaidAt), toNullUnix(payment.ActivatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrKeyCollision
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r paymentRepository) FindByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
}

func (r paymentRepository) FindByServerKey(ctx context.Context, key string) (*domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE server_key = ?`, key))
}

func (r paymentRepository) FindByClientKey(ctx context.Context, key string) (*domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE client_key = ?`, key))
}

func (r paymentRepository) UpdateStatus(ctx context.Context, payment *domain.Payment) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE payments SET status = ?, transaction_id = ?, paid_at = ?, activated_at = ? WHERE id = ?`,
		string(payment.Status), payment.TransactionID, toNullUnix(payment.PaidAt), toNullUnix(payment.ActivatedAt), payment.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
