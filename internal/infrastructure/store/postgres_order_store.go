package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-stock-reservation/internal/domain/order"
	"github.com/jmoiron/sqlx"
)

// PostgresOrderStore implements order.Repository
type PostgresOrderStore struct {
	db *sqlx.DB
}

func NewPostgresOrderStore(db *sqlx.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

type orderLineRow struct {
	OrderID string `db:"order_id"`
	order.Line
}

func (s *PostgresOrderStore) Save(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO orders (id, member_id, status, created_at, updated_at)
		 VALUES (:id, :member_id, :status, :created_at, :updated_at)`,
		o,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, l := range o.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, line_no, product_id, quantity) VALUES ($1, $2, $3, $4)`,
			o.ID, i, l.ProductID, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresOrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := s.db.GetContext(ctx, &o,
		`SELECT id, member_id, status, created_at, updated_at FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &o.Lines,
		`SELECT product_id, quantity FROM order_lines WHERE order_id = $1 ORDER BY line_no`, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresOrderStore) ListByMember(ctx context.Context, memberID string) ([]*order.Order, error) {
	var orders []*order.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT id, member_id, status, created_at, updated_at FROM orders
		 WHERE member_id = $1 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	return orders, s.attachLines(ctx, orders)
}

func (s *PostgresOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	var orders []*order.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT id, member_id, status, created_at, updated_at FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return orders, s.attachLines(ctx, orders)
}

func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current order.Status
	err = s.db.GetContext(ctx, &current, `SELECT status FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return order.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if current == order.StatusCanceled {
		return order.ErrOrderCanceled
	}
	return fmt.Errorf("%w: order %s is %s", order.ErrInvalidStatus, id, current)
}

func (s *PostgresOrderStore) attachLines(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	query, args, err := sqlx.In(
		`SELECT order_id, product_id, quantity FROM order_lines WHERE order_id IN (?) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}

	var rows []orderLineRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, r := range rows {
		if o, ok := byID[r.OrderID]; ok {
			o.Lines = append(o.Lines, r.Line)
		}
	}
	return nil
}
