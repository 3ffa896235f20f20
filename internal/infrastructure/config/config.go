package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=development"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	JWTSecret       string        `env:"JWT_SECRET"`
	ServiceSecret   string        `env:"SERVICE_SECRET"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,        default=24h"`
	KeyTTL          time.Duration `env:"KEY_TTL,          default=24h"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL,   default=1h"`
	RateLimit       int           `env:"RATE_LIMIT_PER_MINUTE, default=20"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`

	DB      DBConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	SMTP    SMTPConfig
	Gateway GatewayConfig
	Mail    MailConfig
}

type DBConfig struct {
	Driver     string `env:"DB_DRIVER,    default=sqlite"`
	URL        string `env:"DATABASE_URL"`
	MaxConns   int    `env:"DB_MAX_CONNS, default=10"`
	SQLitePath string `env:"SQLITE_PATH,  default=entitlement.db"`
}

// RedisConfig is optional: an empty address disables the replay guard and the
// shared rate limiter.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// MongoConfig is optional: an empty URI disables the audit trail.
type MongoConfig struct {
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DB, default=entitlement"`
}

type SMTPConfig struct {
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT,    default=587"`
	User     string        `env:"SMTP_USER"`
	Password string        `env:"SMTP_PASS"`
	From     string        `env:"SMTP_FROM,    default=noreply@soundvault.app"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT, default=10s"`
}

type GatewayConfig struct {
	Provider string        `env:"PAYMENT_GATEWAY, default=quickpay"`
	Timeout  time.Duration `env:"GATEWAY_TIMEOUT, default=10s"`

	QuickpayReceiver   string `env:"QUICKPAY_RECEIVER"`
	QuickpaySuccessURL string `env:"QUICKPAY_SUCCESS_URL"`
	QuickpaySecret     string `env:"QUICKPAY_NOTIFICATION_SECRET"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeSuccessURL    string `env:"STRIPE_SUCCESS_URL"`
	StripeCancelURL     string `env:"STRIPE_CANCEL_URL"`
}

type MailConfig struct {
	Workers   int `env:"MAIL_WORKERS,     default=4"`
	QueueSize int `env:"MAIL_QUEUE_SIZE,  default=256"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.DB.Driver = strings.ToLower(cfg.DB.Driver)
	cfg.Gateway.Provider = strings.ToLower(cfg.Gateway.Provider)
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case "postgres":
		if c.DB.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for DB_DRIVER=postgres"))
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for DB_DRIVER=sqlite"))
		}
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver))
	}

	switch c.Gateway.Provider {
	case "quickpay":
		if c.IsProduction() && c.Gateway.QuickpayReceiver == "" {
			errs = append(errs, errors.New("QUICKPAY_RECEIVER is required in production"))
		}
	case "stripe":
		if c.Gateway.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required for PAYMENT_GATEWAY=stripe"))
		}
		if c.Gateway.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required for PAYMENT_GATEWAY=stripe"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_GATEWAY %q", c.Gateway.Provider))
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.ServiceSecret == "" {
			errs = append(errs, errors.New("SERVICE_SECRET is required in production"))
		}
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.Mail.Workers < 1 {
		errs = append(errs, errors.New("MAIL_WORKERS must be at least 1"))
	}
	return errors.Join(errs...)
}
