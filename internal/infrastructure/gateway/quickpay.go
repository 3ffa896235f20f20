// Package gateway implements ports.PaymentGateway for the supported payment providers.
package gateway

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

const (
	quickpayURL         = "https://yoomoney.ru/quickpay/confirm.xml"
	defaultQuickpayType = "SB"
)

// ErrInvalidSignature is returned when a notification fails authentication.
var ErrInvalidSignature = errors.New("invalid notification signature")

type QuickpayConfig struct {
	Receiver   string
	SuccessURL string
	// NotificationSecret enables sha1_hash verification of incoming notifications.
	NotificationSecret string
	PaymentType        string
}

// Quickpay builds YooMoney quickpay form links. It performs no network calls.
type Quickpay struct {
	cfg QuickpayConfig
}

func NewQuickpay(cfg QuickpayConfig) *Quickpay {
	if cfg.PaymentType == "" {
		cfg.PaymentType = defaultQuickpayType
	}
	return &Quickpay{cfg: cfg}
}

func (q *Quickpay) Method() domain.PaymentMethod { return domain.MethodQuickpay }

func (q *Quickpay) CreateCheckout(ctx context.Context, req ports.CheckoutRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if q.cfg.Receiver == "" {
		return "", errors.New("quickpay receiver is not configured")
	}
	v := url.Values{}
	v.Set("receiver", q.cfg.Receiver)
	v.Set("quickpay-form", "shop")
	v.Set("targets", req.Description)
	v.Set("paymentType", q.cfg.PaymentType)
	v.Set("sum", strconv.FormatFloat(req.Amount, 'f', 2, 64))
	v.Set("label", req.Label)
	if q.cfg.SuccessURL != "" {
		v.Set("successURL", q.cfg.SuccessURL)
	}
	return quickpayURL + "?" + v.Encode(), nil
}

// QuickpayNotification is an HTTP notification as posted by YooMoney.
type QuickpayNotification struct {
	NotificationType string
	OperationID      string
	Amount           string
	Currency         string
	Datetime         string
	Sender           string
	Codepro          string
	Label            string
	SHA1Hash         string
}

// VerifyNotification checks sha1_hash when a notification secret is configured.
// Without a secret every notification is accepted.
func (q *Quickpay) VerifyNotification(n QuickpayNotification) error {
	if q.cfg.NotificationSecret == "" {
		return nil
	}
	expected := quickpaySignature(n, q.cfg.NotificationSecret)
	got := strings.ToLower(strings.TrimSpace(n.SHA1Hash))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func quickpaySignature(n QuickpayNotification, secret string) string {
	raw := strings.Join([]string{
		n.NotificationType,
		n.OperationID,
		n.Amount,
		n.Currency,
		n.Datetime,
		n.Sender,
		n.Codepro,
		secret,
		n.Label,
	}, "&")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
