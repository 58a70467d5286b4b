package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidStock    = errors.New("stock quantity must not be negative")
)

type Product struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Category      string    `json:"category" db:"category"`
	Price         int64     `json:"price" db:"price"`
	StockQuantity int64     `json:"stock_quantity" db:"stock_quantity"`
	ImagePath     string    `json:"image_path,omitempty" db:"image_path"`
	MemberID      string    `json:"member_id" db:"member_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RegisterInput carries a new catalog entry. StockQuantity is the initial
// stock that seeds the ledger and the counter.
type RegisterInput struct {
	Name          string
	Category      string
	Price         int64
	StockQuantity int64
	ImagePath     string
	MemberID      string
}

type Repository interface {
	// Create inserts the product and assigns its id.
	Create(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Delete(ctx context.Context, id int64) error
}

// Seeder writes the initial stock of a product to the ledger and the counter.
type Seeder interface {
	Seed(ctx context.Context, productID, quantity int64) error
}

type Service struct {
	repo   Repository
	seeder Seeder
	logger *zap.Logger
}

func NewService(repo Repository, seeder Seeder, logger *zap.Logger) *Service {
	return &Service{repo: repo, seeder: seeder, logger: logger.Named("catalog")}
}

// Register creates a product and seeds its stock. A product never exists
// without stock records: if seeding fails the product row is removed again.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if in.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if in.StockQuantity < 0 {
		return nil, ErrInvalidStock
	}

	p := &Product{
		Name:          name,
		Category:      strings.TrimSpace(in.Category),
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		ImagePath:     in.ImagePath,
		MemberID:      in.MemberID,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if err := s.seeder.Seed(ctx, p.ID, p.StockQuantity); err != nil {
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), p.ID); delErr != nil {
			s.logger.Error("failed to remove product after seed failure",
				zap.Int64("product_id", p.ID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("failed to seed stock: %w", err)
	}

	s.logger.Info("product registered",
		zap.Int64("product_id", p.ID),
		zap.Int64("stock_quantity", p.StockQuantity),
	)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Product, error) {
	return s.repo.List(ctx)
}
