package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/api/metrics"
	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/internal/infrastructure/gateway"
)

// NotificationVerifier authenticates quickpay notifications.
type NotificationVerifier interface {
	VerifyNotification(n gateway.QuickpayNotification) error
}

// StripeEvents authenticates and decodes Stripe webhooks.
type StripeEvents interface {
	ParseWebhook(payload []byte, signature string) (ports.WebhookInput, string, bool, error)
}

// WebhookHandler receives payment gateway notifications.
type WebhookHandler struct {
	payments ports.PaymentService
	verifier NotificationVerifier
	stripe   StripeEvents
	now      func() time.Time
	log      zerolog.Logger
}

// NewWebhookHandler accepts a nil verifier (notifications trusted as-is) and a
// nil stripe (the Stripe endpoint answers 404).
func NewWebhookHandler(payments ports.PaymentService, verifier NotificationVerifier, stripe StripeEvents, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, verifier: verifier, stripe: stripe, now: time.Now, log: log}
}

// quickpayJSON mirrors the form fields. amount may arrive as a number or a string.
type quickpayJSON struct {
	NotificationType string          `json:"notification_type"`
	OperationID      string          `json:"operation_id"`
	Amount           json.RawMessage `json:"amount"`
	Currency         string          `json:"currency"`
	Datetime         string          `json:"datetime"`
	Sender           string          `json:"sender"`
	Codepro          string          `json:"codepro"`
	Label            string          `json:"label"`
	SHA1Hash         string          `json:"sha1_hash"`
}

type webhookResponse struct {
	Status string `json:"status"`
}

// PaymentWebhook reconciles a quickpay notification, JSON or form encoded.
//
// @Summary      Payment gateway notification
// @Tags         payments
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        body  body      quickpayJSON  true  "label, amount, operation_id"
// @Success      200   {object}  webhookResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /payment_webhook [post]
func (h *WebhookHandler) PaymentWebhook(c echo.Context) error {
	n, err := decodeNotification(c)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(string(domain.MethodQuickpay), "invalid_payload").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if h.verifier != nil {
		if err := h.verifier.VerifyNotification(n); err != nil {
			metrics.WebhooksTotal.WithLabelValues(string(domain.MethodQuickpay), "invalid_signature").Inc()
			h.log.Warn().Str("label", n.Label).Str("operation_id", n.OperationID).Msg("notification signature rejected")
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(n.Amount), 64)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(string(domain.MethodQuickpay), "invalid_payload").Inc()
		return fmt.Errorf("%w: amount must be a number", domain.ErrValidation)
	}

	err = h.payments.ReconcileWebhook(c.Request().Context(), ports.WebhookInput{
		Label:         n.Label,
		Amount:        amount,
		TransactionID: n.OperationID,
		Method:        domain.MethodQuickpay,
		ReceivedAt:    h.now(),
	})
	metrics.WebhooksTotal.WithLabelValues(string(domain.MethodQuickpay), webhookResult(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, webhookResponse{Status: "success"})
}

func decodeNotification(c echo.Context) (gateway.QuickpayNotification, error) {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ctype, echo.MIMEApplicationForm) || strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		return gateway.QuickpayNotification{
			NotificationType: c.FormValue("notification_type"),
			OperationID:      c.FormValue("operation_id"),
			Amount:           c.FormValue("amount"),
			Currency:         c.FormValue("currency"),
			Datetime:         c.FormValue("datetime"),
			Sender:           c.FormValue("sender"),
			Codepro:          c.FormValue("codepro"),
			Label:            c.FormValue("label"),
			SHA1Hash:         c.FormValue("sha1_hash"),
		}, nil
	}

	var body quickpayJSON
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return gateway.QuickpayNotification{}, err
	}
	amount := string(body.Amount)
	if unquoted, err := strconv.Unquote(amount); err == nil {
		amount = unquoted
	}
	return gateway.QuickpayNotification{
		NotificationType: body.NotificationType,
		OperationID:      body.OperationID,
		Amount:           amount,
		Currency:         body.Currency,
		Datetime:         body.Datetime,
		Sender:           body.Sender,
		Codepro:          body.Codepro,
		Label:            body.Label,
		SHA1Hash:         body.SHA1Hash,
	}, nil
}

// StripeWebhook reconciles checkout.session.completed events; other events are
// acknowledged and ignored.
//
// @Summary      Stripe webhook
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header    string  true  "Stripe signature"
// @Success      200               {object}  webhookResponse
// @Failure      400               {object}  map[string]string
// @Failure      404               {object}  map[string]string
// @Router       /stripe/webhook [post]
func (h *WebhookHandler) StripeWebhook(c echo.Context) error {
	if h.stripe == nil {
		return echo.ErrNotFound
	}
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	in, eventType, ok, err := h.stripe.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		result := "invalid_payload"
		if errors.Is(err, gateway.ErrInvalidSignature) {
			result = "invalid_signature"
		}
		metrics.WebhooksTotal.WithLabelValues(string(domain.MethodStripe), result).Inc()
		h.log.Warn().Err(err).Msg("stripe webhook rejected")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook")
	}
	if !ok {
		metrics.WebhooksTotal.WithLabelValues(string(domain.MethodStripe), "ignored").Inc()
		h.log.Debug().Str("event_type", eventType).Msg("stripe event ignored")
		return c.JSON(http.StatusOK, webhookResponse{Status: "ignored"})
	}

	in.ReceivedAt = h.now()
	err = h.payments.ReconcileWebhook(c.Request().Context(), in)
	metrics.WebhooksTotal.WithLabelValues(string(domain.MethodStripe), webhookResult(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, webhookResponse{Status: "success"})
}

func webhookResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrPaymentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidLabel), errors.Is(err, domain.ErrValidation):
		return "invalid_payload"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
