package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soundvault/entitlement-service/internal/api/metrics"
	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// ActivationHandler serves the unauthenticated key redemption endpoints.
type ActivationHandler struct {
	activations ports.ActivationService
}

func NewActivationHandler(activations ports.ActivationService) *ActivationHandler {
	return &ActivationHandler{activations: activations}
}

type activationRequest struct {
	ActivationKey string `json:"activation_key" validate:"required,max=64"`
	DeviceHash    string `json:"device_hash" validate:"required,max=256"`
}

type activationResponse struct {
	Success      bool                        `json:"success"`
	Subscription *domain.SubscriptionSummary `json:"subscription"`
}

// ActivateLicense redeems the literal activation key of a pending payment.
//
// @Summary      Redeem an activation key
// @Tags         activation
// @Accept       json
// @Produce      json
// @Param        body  body      activationRequest  true  "Key and device"
// @Success      200   {object}  activationResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /activate_license [post]
func (h *ActivationHandler) ActivateLicense(c echo.Context) error {
	var req activationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	summary, err := h.activations.RedeemByActivationKey(c.Request().Context(), req.ActivationKey, req.DeviceHash)
	metrics.ActivationsTotal.WithLabelValues("redeem", activationResult(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, activationResponse{Success: true, Subscription: summary})
}

// VerifyActivation redeems a client key on the device it was derived for.
//
// @Summary      Verify a device-bound key
// @Tags         activation
// @Accept       json
// @Produce      json
// @Param        body  body      activationRequest  true  "Client key and device"
// @Success      200   {object}  activationResponse
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /verify_activation [post]
func (h *ActivationHandler) VerifyActivation(c echo.Context) error {
	var req activationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	summary, err := h.activations.VerifyActivation(c.Request().Context(), req.ActivationKey, req.DeviceHash)
	metrics.ActivationsTotal.WithLabelValues("verify", activationResult(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, activationResponse{Success: true, Subscription: summary})
}

func activationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidOrExpiredKey):
		return "invalid_key"
	case errors.Is(err, domain.ErrActivationKeyNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrKeyDeviceMismatch):
		return "device_mismatch"
	case errors.Is(err, domain.ErrDeviceLimitReached):
		return "device_limit"
	case errors.Is(err, domain.ErrSubscriptionExpired):
		return "expired"
	case errors.Is(err, domain.ErrValidation):
		return "invalid_request"
	default:
		return "error"
	}
}
