package store

import (
	"context"
	"fmt"

	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT        NOT NULL,
	category       TEXT        NOT NULL DEFAULT '',
	price          BIGINT      NOT NULL,
	stock_quantity BIGINT      NOT NULL,
	image_path     TEXT        NOT NULL DEFAULT '',
	member_id      TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_ledger (
	product_id BIGINT      PRIMARY KEY,
	quantity   BIGINT      NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_ledger_applied (
	message_id     TEXT        PRIMARY KEY,
	product_id     BIGINT      NOT NULL,
	quantity_delta BIGINT      NOT NULL,
	applied_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT        PRIMARY KEY,
	member_id  TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_member_id ON orders (member_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_lines (
	order_id   TEXT   NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
	line_no    INT    NOT NULL,
	product_id BIGINT NOT NULL,
	quantity   BIGINT NOT NULL,
	PRIMARY KEY (order_id, line_no)
);
`

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
