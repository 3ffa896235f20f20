package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/soundvault/entitlement-service/docs"
	"github.com/soundvault/entitlement-service/internal/api/handler"
	"github.com/soundvault/entitlement-service/internal/api/middleware"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/internal/infrastructure/http/handlers"
)

const webhookBodyLimit = "64K"

// Dependencies are the services and adapters the router wires into handlers.
// Stripe may be nil when the stripe gateway is not configured; Limiter may be
// nil to disable rate limiting.
type Dependencies struct {
	Auth         ports.AuthService
	Devices      ports.DeviceService
	Entitlements ports.EntitlementService
	Payments     ports.PaymentService
	Activations  ports.ActivationService

	Quickpay handler.NotificationVerifier
	Stripe   handler.StripeEvents
	Limiter  ports.RateLimiter
	Health   *handlers.HealthDependenciesHandler

	Log zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(middleware.Metrics())

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	entitlementHandler := handler.NewEntitlementHandler(d.Entitlements, d.Devices)
	paymentHandler := handler.NewPaymentHandler(d.Payments)
	activationHandler := handler.NewActivationHandler(d.Activations)
	webhookHandler := handler.NewWebhookHandler(d.Payments, d.Quickpay, d.Stripe, d.Log)

	auth := middleware.Auth(d.Auth)
	limited := []echo.MiddlewareFunc{}
	if d.Limiter != nil {
		limited = append(limited, middleware.RateLimit(d.Limiter, d.Log))
	}
	bodyLimit := echomiddleware.BodyLimit(webhookBodyLimit)

	// --- Identity ---
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login, limited...)

	// --- Authenticated entitlement routes ---
	e.POST("/check_subscription", entitlementHandler.CheckSubscription, auth)
	e.GET("/account_info", entitlementHandler.AccountInfo, auth)
	e.POST("/remove_device", entitlementHandler.RemoveDevice, auth)
	e.POST("/create_payment", paymentHandler.CreatePayment, auth)

	// --- Key redemption (no session, rate limited) ---
	e.POST("/activate_license", activationHandler.ActivateLicense, limited...)
	e.POST("/verify_activation", activationHandler.VerifyActivation, limited...)

	// --- Gateway callbacks ---
	e.POST("/payment_webhook", webhookHandler.PaymentWebhook, bodyLimit)
	if d.Stripe != nil {
		e.POST("/stripe/webhook", webhookHandler.StripeWebhook, bodyLimit)
	}

	// --- Health probes (no auth required) ---
	e.GET("/health", handlers.NewHealthHandler().Liveness) // liveness  – is the process alive?
	if d.Health != nil {
		e.GET("/health/ready", d.Health.Readiness) // readiness – are dependencies up?
	}

	// --- Operations ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil || v.Status >= 500 {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
