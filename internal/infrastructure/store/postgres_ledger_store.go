package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/jmoiron/sqlx"
)

// PostgresLedgerStore keeps the stock ledger in PostgreSQL. Applied message
// ids live in stock_ledger_applied and are written in the same transaction as
// the quantity change.
type PostgresLedgerStore struct {
	db *sqlx.DB
}

func NewPostgresLedgerStore(db *sqlx.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (s *PostgresLedgerStore) Seed(ctx context.Context, productID, quantity int64) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_ledger (product_id, quantity, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (product_id) DO NOTHING`,
		productID, quantity, time.Now(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAlreadySeeded
	}
	return nil
}

func (s *PostgresLedgerStore) Apply(ctx context.Context, messageID string, productID, delta int64) (int64, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO stock_ledger_applied (message_id, product_id, quantity_delta, applied_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, productID, delta, now,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	if n == 0 {
		quantity, err := getQuantity(ctx, tx, productID)
		return quantity, false, err
	}

	var quantity int64
	err = tx.QueryRowxContext(ctx,
		`UPDATE stock_ledger SET quantity = quantity + $1, updated_at = $2
		 WHERE product_id = $3
		 RETURNING quantity`,
		delta, now, productID,
	).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ledger.ErrEntryNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to update ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit: %w", err)
	}
	return quantity, true, nil
}

func (s *PostgresLedgerStore) Get(ctx context.Context, productID int64) (int64, error) {
	return getQuantity(ctx, s.db, productID)
}

func (s *PostgresLedgerStore) Delete(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stock_ledger WHERE product_id = $1`, productID)
	return err
}

func getQuantity(ctx context.Context, q sqlx.QueryerContext, productID int64) (int64, error) {
	var quantity int64
	err := sqlx.GetContext(ctx, q, &quantity, `SELECT quantity FROM stock_ledger WHERE product_id = $1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrEntryNotFound
	}
	if err != nil {
		return 0, err
	}
	return quantity, nil
}
