package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soundvault/entitlement-service/internal/api"
	"github.com/soundvault/entitlement-service/internal/api/metrics"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/internal/core/service"
	mongostore "github.com/soundvault/entitlement-service/internal/infrastructure/db/mongo"
	redisstore "github.com/soundvault/entitlement-service/internal/infrastructure/db/redis"
	"github.com/soundvault/entitlement-service/internal/infrastructure/http/handlers"
	"github.com/soundvault/entitlement-service/internal/infrastructure/mail"
	"github.com/soundvault/entitlement-service/internal/infrastructure/queue"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the expiry sweep and the mail workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("version", Version).
		Str("env", cfg.Env).
		Str("db_driver", cfg.DB.Driver).
		Str("gateway", cfg.Gateway.Provider).
		Msg("starting entitlement service")

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}()

	// Redis and MongoDB are optional; nil interfaces disable the features
	// that depend on them.
	var (
		rdb    goredis.Cmdable
		replay ports.ReplayGuard
		audit  ports.AuditLog
	)
	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		rdb = redisClient
		replay = redisstore.NewReplayGuard(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	mongoClient, mdb, err := connectMongo(ctx, cfg)
	if err != nil {
		return err
	}
	if mongoClient != nil {
		defer func() {
			if err := mongostore.Disconnect(mongoClient); err != nil {
				log.Error().Err(err).Msg("mongo disconnect failed")
			}
		}()
		auditLog := mongostore.NewAuditLog(mdb)
		if err := auditLog.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("audit index creation failed")
		}
		audit = auditLog
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongo audit trail enabled")
	}

	// The mail workers outlive the HTTP server so activation mails queued by
	// in-flight webhooks still get a send attempt during shutdown.
	mailCtx, stopMail := context.WithCancel(context.Background())
	defer stopMail()
	mailer := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	}, logger.Component("mail"))
	if cfg.SMTP.Host == "" {
		log.Warn().Msg("SMTP_HOST not set, activation keys will not be emailed")
	}
	dispatcher := queue.NewDispatcher(cfg.Mail.Workers, cfg.Mail.QueueSize, mailer, cfg.SMTP.Timeout, logger.Component("queue"))
	dispatcher.Start(mailCtx)

	pg := newPaymentGateway(cfg.Gateway)

	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.TokenTTL, logger.Component("auth"))
	subscriptions := service.NewSubscriptionService(store, logger.Component("subscriptions"))
	deps := api.Dependencies{
		Auth:         authSvc,
		Devices:      service.NewDeviceService(store, audit, logger.Component("devices")),
		Entitlements: service.NewEntitlementService(store, audit, logger.Component("entitlements")),
		Activations:  service.NewActivationService(store, cfg.ServiceSecret, audit, logger.Component("activation")),
		Payments: service.NewPaymentService(store, pg.gateway, dispatcher, replay, audit, service.PaymentConfig{
			ServiceSecret:  cfg.ServiceSecret,
			KeyTTL:         cfg.KeyTTL,
			GatewayTimeout: cfg.Gateway.Timeout,
		}, logger.Component("payments")),
		Limiter: newRateLimiter(cfg.RateLimit, redisClient),
		Health:  handlers.NewHealthDependenciesHandler(store, mdb, rdb),
		Log:     logger.Component("http"),
	}
	// Assigned only when set so the interfaces stay nil otherwise.
	if pg.quickpay != nil {
		deps.Quickpay = pg.quickpay
	}
	if pg.stripe != nil {
		deps.Stripe = pg.stripe
	}
	e := api.NewRouter(deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		runSweepLoop(gctx, subscriptions, cfg.SweepInterval, logger.Component("sweep"))
		return nil
	})

	err = g.Wait()

	stopMail()
	dispatcher.Wait()
	log.Info().Msg("entitlement service stopped")
	return err
}

// runSweepLoop deactivates expired subscriptions every interval until ctx is
// cancelled. A non-positive interval disables the loop.
func runSweepLoop(ctx context.Context, subs ports.SubscriptionService, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		log.Info().Msg("expiry sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, subs, log)
		}
	}
}

func sweepOnce(ctx context.Context, subs ports.SubscriptionService, log zerolog.Logger) int64 {
	n, err := subs.SweepExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
		return 0
	}
	if n > 0 {
		metrics.SubscriptionsExpiredTotal.Add(float64(n))
		log.Info().Int64("deactivated", n).Msg("expired subscriptions deactivated")
	}
	return n
}
