package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/example/ec-stock-reservation/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/example/ec-stock-reservation/internal/domain/inventory"

// publishTimeout bounds a reconciliation publish once it is detached from the
// request.
const publishTimeout = 10 * time.Second

var (
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrCounterStoreUnavailable = errors.New("counter store unavailable")
	ErrQueuePublish            = errors.New("reconciliation publish failed")
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrNoLines                 = errors.New("order has no lines")
)

// Counter is the atomic counter store as seen by admission control. Only the
// atomic increment and decrement are used on the hot path.
type Counter interface {
	Get(ctx context.Context, productID int64) (int64, error)
	IncrBy(ctx context.Context, productID, delta int64) (int64, error)
	DecrBy(ctx context.Context, productID, delta int64) (int64, error)
}

// Publisher sends a message to the reconciliation queue.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// LedgerReader reads the durable quantity for drift reports.
type LedgerReader interface {
	Read(ctx context.Context, productID int64) (int64, error)
}

// Line is one product and quantity of an order being admitted.
type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// AdmissionResult describes an accepted line.
type AdmissionResult struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	Remaining int64 `json:"remaining"`
}

// OrderAdmission is the outcome of an accepted order.
type OrderAdmission struct {
	OrderID         string            `json:"order_id"`
	Lines           []AdmissionResult `json:"lines"`
	PublishFailures int               `json:"-"`
}

// RejectionError reports the line that failed an order admission. It unwraps
// to ErrInsufficientStock, ErrCounterStoreUnavailable or ErrInvalidQuantity.
type RejectionError struct {
	ProductID int64
	Reason    error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("product %d rejected: %v", e.ProductID, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// Drift compares the fast counter with the durable ledger of one product.
type Drift struct {
	ProductID int64 `json:"product_id"`
	Counter   int64 `json:"counter"`
	Ledger    int64 `json:"ledger"`
	// Drift is ledger minus counter: deltas not yet reconciled, or lost.
	Drift int64 `json:"drift"`
}

type Controller struct {
	counter   Counter
	publisher Publisher
	ledger    LedgerReader
	logger    *zap.Logger
}

func NewController(counter Counter, publisher Publisher, ledger LedgerReader, logger *zap.Logger) *Controller {
	return &Controller{
		counter:   counter,
		publisher: publisher,
		ledger:    ledger,
		logger:    logger.Named("admission"),
	}
}

// Admit reserves quantity units of a product. The counter is decremented
// first; a negative result means the request overdrew the stock, so the same
// quantity is added back and the request is rejected. Concurrent overdrafts
// each see their own negative value and each compensate.
func (c *Controller) Admit(ctx context.Context, productID, quantity int64) (AdmissionResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "inventory.admit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int64("stock.requested", quantity),
	)

	result := AdmissionResult{ProductID: productID, Quantity: quantity}
	if quantity <= 0 {
		return result, ErrInvalidQuantity
	}

	remaining, err := c.counter.DecrBy(ctx, productID, quantity)
	if err != nil {
		// The decrement may or may not have landed; rejecting keeps us from overselling.
		span.SetStatus(codes.Error, "counter unavailable")
		return result, fmt.Errorf("%w: %v", ErrCounterStoreUnavailable, err)
	}

	if remaining < 0 {
		c.compensate(ctx, productID, quantity)
		span.SetAttributes(attribute.String("stock.outcome", "rejected"))
		return result, ErrInsufficientStock
	}

	span.SetAttributes(
		attribute.String("stock.outcome", "accepted"),
		attribute.Int64("stock.remaining", remaining),
	)
	result.Remaining = remaining
	return result, nil
}

// AdmitOrder admits every line or none. When a line is rejected the lines
// accepted before it are compensated before the rejection is returned. Once
// all lines are in, one reconciliation message per line is published.
func (c *Controller) AdmitOrder(ctx context.Context, orderID string, lines []Line) (*OrderAdmission, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "inventory.admit_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.lines", len(lines)),
	)

	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	accepted := make([]AdmissionResult, 0, len(lines))
	for _, line := range lines {
		res, err := c.Admit(ctx, line.ProductID, line.Quantity)
		if err != nil {
			for i := len(accepted) - 1; i >= 0; i-- {
				c.compensate(ctx, accepted[i].ProductID, accepted[i].Quantity)
			}
			span.SetStatus(codes.Error, err.Error())
			c.logger.Info("order rejected",
				zap.String("order_id", orderID),
				zap.Int64("product_id", line.ProductID),
				zap.Int64("quantity", line.Quantity),
				zap.Error(err),
			)
			return nil, &RejectionError{ProductID: line.ProductID, Reason: err}
		}
		accepted = append(accepted, res)
	}

	admission := &OrderAdmission{OrderID: orderID, Lines: accepted}
	for _, res := range accepted {
		msg := ledger.NewReconciliationMessage(res.ProductID, -res.Quantity, orderID, ledger.ReasonOrderAdmitted)
		if err := c.publish(ctx, msg); err != nil {
			admission.PublishFailures++
		}
	}

	return admission, nil
}

// ReverseStock returns quantity units to a product and enqueues the matching
// positive ledger delta.
func (c *Controller) ReverseStock(ctx context.Context, productID, quantity int64, orderID string) (int64, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "inventory.reverse")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int64("stock.reversed", quantity),
	)

	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}

	remaining, err := c.counter.IncrBy(ctx, productID, quantity)
	if err != nil {
		span.SetStatus(codes.Error, "counter unavailable")
		return 0, fmt.Errorf("%w: %v", ErrCounterStoreUnavailable, err)
	}

	msg := ledger.NewReconciliationMessage(productID, quantity, orderID, ledger.ReasonStockReversed)
	_ = c.publish(ctx, msg)

	return remaining, nil
}

// DriftReport reads both stores for one product.
func (c *Controller) DriftReport(ctx context.Context, productID int64) (*Drift, error) {
	counter, err := c.counter.Get(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to read counter: %w", err)
	}
	durable, err := c.ledger.Read(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return &Drift{
		ProductID: productID,
		Counter:   counter,
		Ledger:    durable,
		Drift:     durable - counter,
	}, nil
}

// compensate undoes a decrement. It runs detached from the caller's
// cancellation so a dropped request cannot leave the overdraft in place.
func (c *Controller) compensate(ctx context.Context, productID, quantity int64) {
	if _, err := c.counter.IncrBy(context.WithoutCancel(ctx), productID, quantity); err != nil {
		c.logger.Error("counter compensation failed, counter under-reports stock",
			logging.Critical(),
			zap.Int64("product_id", productID),
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)
	}
}

// publish never fails the caller: the counter is already committed, so a lost
// message is reported for operator reconciliation instead. The write is
// detached from the caller's cancellation; a dropped client must not drop the
// delta its counter change already produced.
func (c *Controller) publish(ctx context.Context, msg ledger.ReconciliationMessage) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := c.publisher.Publish(ctx, msg.PartitionKey(), msg); err != nil {
		c.logger.Error("reconciliation message lost, ledger will drift",
			logging.Critical(),
			zap.String("message_id", msg.MessageID),
			zap.Int64("product_id", msg.ProductID),
			zap.Int64("quantity_delta", msg.QuantityDelta),
			zap.String("order_id", msg.OrderID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrQueuePublish, err)
	}
	return nil
}
