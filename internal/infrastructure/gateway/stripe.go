package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Stripe creates Checkout Sessions and authenticates Stripe webhooks.
type Stripe struct {
	cfg        StripeConfig
	newSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
}

func NewStripe(cfg StripeConfig) *Stripe {
	stripelib.Key = strings.TrimSpace(cfg.SecretKey)
	return &Stripe{cfg: cfg, newSession: stripesession.New}
}

func (s *Stripe) Method() domain.PaymentMethod { return domain.MethodStripe }

func (s *Stripe) CreateCheckout(ctx context.Context, req ports.CheckoutRequest) (string, error) {
	params := &stripelib.CheckoutSessionParams{
		Mode:              stripelib.String(string(stripelib.CheckoutSessionModePayment)),
		SuccessURL:        stripelib.String(s.cfg.SuccessURL),
		CancelURL:         stripelib.String(s.cfg.CancelURL),
		ClientReferenceID: stripelib.String(req.Label),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				PriceData: &stripelib.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripelib.String(strings.ToLower(req.Currency)),
					UnitAmount: stripelib.Int64(toMinorUnits(req.Amount)),
					ProductData: &stripelib.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripelib.String(req.Description),
					},
				},
				Quantity: stripelib.Int64(1),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripelib.String(req.Email)
	}
	params.AddMetadata("payment_id", strconv.FormatInt(req.PaymentID, 10))
	params.Context = ctx

	sess, err := s.newSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if sess == nil || strings.TrimSpace(sess.URL) == "" {
		return "", errors.New("create checkout session: empty session url")
	}
	return sess.URL, nil
}

// checkoutSession is the subset of a checkout.session object the webhook needs.
type checkoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	PaymentStatus     string `json:"payment_status"`
	PaymentIntent     string `json:"payment_intent"`
}

// ParseWebhook authenticates a Stripe webhook and extracts the payment confirmation.
// ok is false for events that carry no confirmation; they should be acknowledged.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (in ports.WebhookInput, eventType string, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return ports.WebhookInput{}, "", false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	eventType = string(event.Type)
	if event.Type != "checkout.session.completed" {
		return ports.WebhookInput{}, eventType, false, nil
	}

	var sess checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return ports.WebhookInput{}, eventType, false, fmt.Errorf("decode checkout.session: %w", err)
	}
	if sess.PaymentStatus != string(stripelib.CheckoutSessionPaymentStatusPaid) {
		return ports.WebhookInput{}, eventType, false, nil
	}

	operationID := sess.PaymentIntent
	if operationID == "" {
		operationID = sess.ID
	}
	return ports.WebhookInput{
		Label:         sess.ClientReferenceID,
		Amount:        float64(sess.AmountTotal) / 100,
		TransactionID: operationID,
		Method:        domain.MethodStripe,
	}, eventType, true, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
