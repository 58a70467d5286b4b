package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-stock-reservation/internal/domain/inventory"
	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/example/ec-stock-reservation/internal/domain/order"
	"github.com/example/ec-stock-reservation/internal/domain/product"
	"go.uber.org/zap"
)

// StockReader reads the durable stock of a product.
type StockReader interface {
	Read(ctx context.Context, productID int64) (int64, error)
}

type Handler struct {
	products  *product.Service
	orders    *order.Service
	stock     StockReader
	admission *inventory.Controller
	logger    *zap.Logger
}

func NewHandler(
	products *product.Service,
	orders *order.Service,
	stock StockReader,
	admission *inventory.Controller,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		products:  products,
		orders:    orders,
		stock:     stock,
		admission: admission,
		logger:    logger.Named("query"),
	}
}

// Products
func (h *Handler) GetProduct(ctx context.Context, id int64) (*ProductView, error) {
	p, err := h.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.view(ctx, p)
}

func (h *Handler) ListProducts(ctx context.Context) ([]*ProductView, error) {
	items, err := h.products.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*ProductView, 0, len(items))
	for _, p := range items {
		v, err := h.view(ctx, p)
		if errors.Is(err, ledger.ErrEntryNotFound) {
			// Registration still in flight, or abandoned before seeding.
			h.logger.Debug("skipping unseeded product", zap.Int64("product_id", p.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// StockReport returns the counter and ledger quantities of a product.
func (h *Handler) StockReport(ctx context.Context, id int64) (*StockView, error) {
	p, err := h.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := h.admission.DriftReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Drift != 0 {
		h.logger.Debug("stock drift",
			zap.Int64("product_id", id),
			zap.Int64("counter", d.Counter),
			zap.Int64("ledger", d.Ledger),
		)
	}
	return newStockView(p, d), nil
}

// Orders

// GetOrder returns an order visible to the member. Orders of other members are
// reported as missing unless the caller is an admin.
func (h *Handler) GetOrder(ctx context.Context, id, memberID string, admin bool) (*order.Order, error) {
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && !o.OwnedBy(memberID) {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

// ListOrders returns the member's orders, or every order for an admin.
func (h *Handler) ListOrders(ctx context.Context, memberID string, admin bool) ([]*order.Order, error) {
	if admin {
		return h.orders.ListAll(ctx)
	}
	return h.orders.ListByMember(ctx, memberID)
}

func (h *Handler) view(ctx context.Context, p *product.Product) (*ProductView, error) {
	qty, err := h.stock.Read(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock of product %d: %w", p.ID, err)
	}
	return &ProductView{Product: p, Stock: qty}, nil
}
