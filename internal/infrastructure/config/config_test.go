package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DB.Driver != "sqlite" || cfg.Gateway.Provider != "quickpay" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.KeyTTL != 24*time.Hour || cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl defaults: key=%v token=%v", cfg.KeyTTL, cfg.TokenTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate in development: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/entitlement")
	t.Setenv("KEY_TTL", "2h")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("expected driver to be lower-cased, got %q", cfg.DB.Driver)
	}
	if cfg.KeyTTL != 2*time.Hour {
		t.Fatalf("expected KEY_TTL=2h, got %v", cfg.KeyTTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Env:     "development",
			DB:      DBConfig{Driver: "sqlite", SQLitePath: "x.db"},
			Gateway: GatewayConfig{Provider: "quickpay"},
			Mail:    MailConfig{Workers: 1},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.DB.Driver = "postgres" }, "DATABASE_URL"},
		{"unknown driver", func(c *Config) { c.DB.Driver = "oracle" }, "DB_DRIVER"},
		{"memory in production", func(c *Config) {
			c.Env = "production"
			c.DB.Driver = "memory"
		}, "not allowed in production"},
		{"stripe without keys", func(c *Config) { c.Gateway.Provider = "stripe" }, "STRIPE_SECRET_KEY"},
		{"unknown gateway", func(c *Config) { c.Gateway.Provider = "paypal" }, "PAYMENT_GATEWAY"},
		{"production secrets", func(c *Config) { c.Env = "production" }, "JWT_SECRET"},
		{"no mail workers", func(c *Config) { c.Mail.Workers = 0 }, "MAIL_WORKERS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}
