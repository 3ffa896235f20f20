package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soundvault/entitlement-service/internal/api/metrics"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

type PaymentHandler struct {
	payments ports.PaymentService
}

func NewPaymentHandler(payments ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	PlanType   string `json:"plan_type" validate:"required"`
	DeviceHash string `json:"device_hash" validate:"required,max=256"`
}

type createPaymentResponse struct {
	Success        bool    `json:"success"`
	PaymentID      int64   `json:"payment_id"`
	SubscriptionID int64   `json:"subscription_id"`
	PaymentURL     string  `json:"payment_url"`
	ClientKey      string  `json:"client_key"`
	ServerKey      string  `json:"server_key"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Label          string  `json:"label"`
	Description    string  `json:"description"`
}

// CreatePayment records a pending purchase and returns where to pay for it.
//
// @Summary      Create a pending purchase
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        body  body      createPaymentRequest  true  "Plan and purchasing device"
// @Success      200   {object}  createPaymentResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /create_payment [post]
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	var req createPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	intent, err := h.payments.CreatePendingPurchase(c.Request().Context(), userID, req.PlanType, req.DeviceHash)
	if err != nil {
		return err
	}

	metrics.PurchasesCreatedTotal.WithLabelValues(string(intent.Plan)).Inc()
	return c.JSON(http.StatusOK, createPaymentResponse{
		Success:        true,
		PaymentID:      intent.PaymentID,
		SubscriptionID: intent.SubscriptionID,
		PaymentURL:     intent.PaymentURL,
		ClientKey:      intent.ClientKey,
		ServerKey:      intent.ServerKey,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Label:          intent.Label,
		Description:    intent.Description,
	})
}
