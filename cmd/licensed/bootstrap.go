package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/soundvault/entitlement-service/internal/api/middleware"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/internal/infrastructure/config"
	"github.com/soundvault/entitlement-service/internal/infrastructure/db/memory"
	mongostore "github.com/soundvault/entitlement-service/internal/infrastructure/db/mongo"
	"github.com/soundvault/entitlement-service/internal/infrastructure/db/postgres"
	redisstore "github.com/soundvault/entitlement-service/internal/infrastructure/db/redis"
	"github.com/soundvault/entitlement-service/internal/infrastructure/db/sqlite"
	"github.com/soundvault/entitlement-service/internal/infrastructure/gateway"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

const serviceName = "entitlement-service"

// loadConfig reads an optional .env file, then the environment, and
// initialises the process logger from the result.
func loadConfig(ctx context.Context) (*config.Config, zerolog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, zerolog.Nop(), fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: serviceName,
	})
	return cfg, log, nil
}

// openStore connects the configured driver. Postgres migrations and the
// sqlite schema are applied on every open; both are idempotent.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.Store, error) {
	switch cfg.DB.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.DB.URL, cfg.DB.MaxConns, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, db, log); err != nil {
			return nil, err
		}
		return postgres.NewStore(db), nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.DB.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		log.Warn().Msg("using in-memory store, all state is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DB.Driver)
	}
}

// connectRedis returns a nil client when REDIS_ADDR is unset.
func connectRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	return redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
}

// connectMongo returns nil values when MONGO_URI is unset.
func connectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	if cfg.Mongo.URI == "" {
		return nil, nil, nil
	}
	return mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
}

// newRateLimiter prefers the shared Redis window so replicas agree on quotas.
// A zero limit disables limiting.
func newRateLimiter(perMinute int, rdb *goredis.Client) ports.RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if rdb != nil {
		return redisstore.NewRateLimiter(rdb, perMinute, time.Minute)
	}
	return middleware.NewLocalLimiter(perMinute)
}

// paymentGateway is the configured provider plus whichever webhook
// authenticator belongs to it. Exactly one of quickpay and stripe is set.
type paymentGateway struct {
	gateway  ports.PaymentGateway
	quickpay *gateway.Quickpay
	stripe   *gateway.Stripe
}

func newPaymentGateway(cfg config.GatewayConfig) paymentGateway {
	if cfg.Provider == "stripe" {
		s := gateway.NewStripe(gateway.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.StripeSuccessURL,
			CancelURL:     cfg.StripeCancelURL,
		})
		return paymentGateway{gateway: s, stripe: s}
	}
	q := gateway.NewQuickpay(gateway.QuickpayConfig{
		Receiver:           cfg.QuickpayReceiver,
		SuccessURL:         cfg.QuickpaySuccessURL,
		NotificationSecret: cfg.QuickpaySecret,
	})
	return paymentGateway{gateway: q, quickpay: q}
}
