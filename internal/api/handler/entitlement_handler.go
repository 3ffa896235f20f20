package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soundvault/entitlement-service/internal/api/metrics"
	"github.com/soundvault/entitlement-service/internal/core/domain"
	"github.com/soundvault/entitlement-service/internal/core/ports"
)

// EntitlementHandler serves the authenticated account endpoints.
type EntitlementHandler struct {
	entitlements ports.EntitlementService
	devices      ports.DeviceService
	now          func() time.Time
}

func NewEntitlementHandler(entitlements ports.EntitlementService, devices ports.DeviceService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements, devices: devices, now: time.Now}
}

type deviceRequest struct {
	DeviceHash string `json:"device_hash" validate:"max=256"`
}

type checkResponse struct {
	Valid        bool                        `json:"valid"`
	Subscription *domain.SubscriptionSummary `json:"subscription,omitempty"`
	Error        string                      `json:"error,omitempty"`
}

// CheckSubscription reports whether the caller may use premium features. A
// supplied device_hash is bound to the account when it is not bound yet.
//
// @Summary      Check subscription (binds the device)
// @Tags         entitlement
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        body  body      deviceRequest  false  "Device fingerprint"
// @Success      200   {object}  checkResponse
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  checkResponse
// @Router       /check_subscription [post]
func (h *EntitlementHandler) CheckSubscription(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	var req deviceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	summary, err := h.entitlements.CheckSubscription(c.Request().Context(), userID, req.DeviceHash)
	if err != nil {
		if isDenial(err) {
			metrics.EntitlementChecksTotal.WithLabelValues("denied").Inc()
			return c.JSON(http.StatusForbidden, checkResponse{Valid: false, Error: denialMessage(err)})
		}
		return err
	}

	metrics.EntitlementChecksTotal.WithLabelValues("valid").Inc()
	return c.JSON(http.StatusOK, checkResponse{Valid: true, Subscription: summary})
}

func isDenial(err error) bool {
	return errors.Is(err, domain.ErrNoActiveSubscription) ||
		errors.Is(err, domain.ErrSubscriptionExpired) ||
		errors.Is(err, domain.ErrDeviceLimitReached)
}

func denialMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrDeviceLimitReached):
		return domain.ErrDeviceLimitReached.Error()
	case errors.Is(err, domain.ErrSubscriptionExpired):
		return domain.ErrSubscriptionExpired.Error()
	default:
		return domain.ErrNoActiveSubscription.Error()
	}
}

type accountSubscription struct {
	Plan     domain.Plan `json:"plan_type"`
	StartsAt time.Time   `json:"start_date"`
	EndsAt   time.Time   `json:"end_date"`
	DaysLeft int         `json:"days_left"`
}

type accountResponse struct {
	Success      bool                 `json:"success"`
	User         *domain.User         `json:"user"`
	Subscription *accountSubscription `json:"subscription"`
	Devices      []domain.Device      `json:"devices"`
}

// AccountInfo returns the user, the currently valid subscription (or null) and
// the active devices.
//
// @Summary      Account overview
// @Tags         entitlement
// @Produce      json
// @Security     SessionToken
// @Success      200  {object}  accountResponse
// @Failure      401  {object}  map[string]string
// @Router       /account_info [get]
func (h *EntitlementHandler) AccountInfo(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	info, err := h.entitlements.AccountInfo(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	resp := accountResponse{Success: true, User: info.User, Devices: info.Devices}
	if resp.Devices == nil {
		resp.Devices = []domain.Device{}
	}
	if sub := info.Subscription; sub != nil {
		resp.Subscription = &accountSubscription{
			Plan:     sub.Plan,
			StartsAt: sub.StartsAt,
			EndsAt:   sub.EndsAt,
			DaysLeft: sub.DaysLeft(h.now()),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type removeDeviceRequest struct {
	DeviceHash string `json:"device_hash" validate:"required,max=256"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// RemoveDevice deactivates one of the caller's devices. success is false when
// no active device matched.
//
// @Summary      Remove a device
// @Tags         entitlement
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        body  body      removeDeviceRequest  true  "Device fingerprint"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /remove_device [post]
func (h *EntitlementHandler) RemoveDevice(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	var req removeDeviceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	removed, err := h.devices.Remove(c.Request().Context(), userID, req.DeviceHash)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{Success: removed})
}
