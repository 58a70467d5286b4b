package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-stock-reservation/internal/domain/product"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, category, price, stock_quantity, image_path, member_id, created_at`

// PostgresProductStore implements product.Repository
type PostgresProductStore struct {
	db *sqlx.DB
}

func NewPostgresProductStore(db *sqlx.DB) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

func (s *PostgresProductStore) Create(ctx context.Context, p *product.Product) error {
	return s.db.QueryRowxContext(ctx,
		`INSERT INTO products (name, category, price, stock_quantity, image_path, member_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		p.Name, p.Category, p.Price, p.StockQuantity, p.ImagePath, p.MemberID, p.CreatedAt,
	).Scan(&p.ID)
}

func (s *PostgresProductStore) FindByID(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	err := s.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresProductStore) List(ctx context.Context) ([]*product.Product, error) {
	var products []*product.Product
	if err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *PostgresProductStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	return err
}
