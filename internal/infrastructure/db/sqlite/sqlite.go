// Package sqlite is a single-file ports.Store for self-hosted deployments.
// One connection serializes every transaction, which also serializes per-user
// critical sections.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    email         TEXT    NOT NULL UNIQUE,
    password_hash TEXT    NOT NULL,
    created_at    INTEGER NOT NULL,
    last_login    INTEGER
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    plan_type  TEXT    NOT NULL,
    price      REAL    NOT NULL,
    start_date INTEGER NOT NULL,
    end_date   INTEGER NOT NULL,
    is_active  INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_one_active_per_user
    ON subscriptions (user_id) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS user_devices (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    device_hash TEXT    NOT NULL,
    device_name TEXT    NOT NULL,
    is_active   INTEGER NOT NULL DEFAULT 1,
    last_active INTEGER NOT NULL,
    UNIQUE (user_id, device_hash)
);

CREATE TABLE IF NOT EXISTS payments (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id         INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    subscription_id INTEGER NOT NULL REFERENCES subscriptions (id) ON DELETE CASCADE,
    plan_type       TEXT    NOT NULL,
    amount          REAL    NOT NULL,
    currency        TEXT    NOT NULL,
    status          TEXT    NOT NULL,
    method          TEXT    NOT NULL,
    transaction_id  TEXT    NOT NULL DEFAULT '',
    server_key      TEXT    NOT NULL UNIQUE,
    client_key      TEXT    UNIQUE,
    key_expires_at  INTEGER NOT NULL,
    created_at      INTEGER NOT NULL,
    paid_at         INTEGER,
    activated_at    INTEGER
);

CREATE INDEX IF NOT EXISTS payments_user_id ON payments (user_id);
`

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(10000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	log.Info().Str("path", path).Msg("sqlite store opened")
	return &Store{db: db}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
