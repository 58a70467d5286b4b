package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-stock-reservation/internal/domain/inventory"
	"github.com/example/ec-stock-reservation/internal/domain/order"
	"github.com/example/ec-stock-reservation/internal/domain/product"
	"github.com/example/ec-stock-reservation/internal/logging"
	"go.uber.org/zap"
)

var ErrReversalIncomplete = errors.New("order canceled but stock reversal incomplete")

// PlacedOrder is an admitted and persisted order with the remaining stock of
// each line at admission time.
type PlacedOrder struct {
	*order.Order
	Admission []inventory.AdmissionResult `json:"admission"`
}

type Handler struct {
	productSvc *product.Service
	orderSvc   *order.Service
	admission  *inventory.Controller
	logger     *zap.Logger
}

func NewHandler(
	productSvc *product.Service,
	orderSvc *order.Service,
	admission *inventory.Controller,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		productSvc: productSvc,
		orderSvc:   orderSvc,
		admission:  admission,
		logger:     logger.Named("command"),
	}
}

// CreateProduct registers a product and seeds its stock
func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (*product.Product, error) {
	return h.productSvc.Register(ctx, product.RegisterInput{
		Name:          cmd.Name,
		Category:      cmd.Category,
		Price:         cmd.Price,
		StockQuantity: cmd.StockQuantity,
		ImagePath:     cmd.ImagePath,
		MemberID:      cmd.MemberID,
	})
}

// PlaceOrder admits every line against the counters, then persists the order.
// If the order cannot be saved, the admitted stock is returned.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*PlacedOrder, error) {
	lines := make([]order.Line, len(cmd.Lines))
	for i, l := range cmd.Lines {
		lines[i] = order.Line{ProductID: l.ProductID, Quantity: l.ProductCount}
	}

	o, err := order.New(cmd.MemberID, lines)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		if _, err := h.productSvc.Get(ctx, l.ProductID); err != nil {
			return nil, err
		}
	}

	admitLines := make([]inventory.Line, len(lines))
	for i, l := range lines {
		admitLines[i] = inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	admission, err := h.admission.AdmitOrder(ctx, o.ID, admitLines)
	if err != nil {
		return nil, err
	}

	// The counters are committed; the rest runs to completion even if the
	// client goes away.
	ctx = context.WithoutCancel(ctx)
	if err := h.orderSvc.Place(ctx, o); err != nil {
		h.logger.Error("order not saved after admission, returning stock",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		h.reverseLines(ctx, o)
		return nil, err
	}

	return &PlacedOrder{Order: o, Admission: admission.Lines}, nil
}

// CancelOrder marks the order canceled and returns its stock. Members may only
// cancel their own orders; other orders look missing to them.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	o, err := h.orderSvc.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.IsAdmin && !o.OwnedBy(cmd.MemberID) {
		return nil, order.ErrOrderNotFound
	}

	canceled, err := h.orderSvc.Cancel(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if failed := h.reverseLines(context.WithoutCancel(ctx), canceled); failed > 0 {
		return canceled, fmt.Errorf("%w: %d of %d lines", ErrReversalIncomplete, failed, len(canceled.Lines))
	}
	return canceled, nil
}

// ReverseStock returns units to a product and reports the new counter value
func (h *Handler) ReverseStock(ctx context.Context, cmd ReverseStock) (int64, error) {
	if _, err := h.productSvc.Get(ctx, cmd.ProductID); err != nil {
		return 0, err
	}
	return h.admission.ReverseStock(ctx, cmd.ProductID, cmd.Quantity, cmd.OrderID)
}

func (h *Handler) reverseLines(ctx context.Context, o *order.Order) int {
	failed := 0
	for _, l := range o.Lines {
		if _, err := h.admission.ReverseStock(ctx, l.ProductID, l.Quantity, o.ID); err != nil {
			failed++
			h.logger.Error("stock reversal failed, counter under-reports stock",
				logging.Critical(),
				zap.String("order_id", o.ID),
				zap.Int64("product_id", l.ProductID),
				zap.Int64("quantity", l.Quantity),
				zap.Error(err),
			)
		}
	}
	return failed
}
