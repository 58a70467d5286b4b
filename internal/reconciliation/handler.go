package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/example/ec-stock-reservation/internal/infrastructure/kafka"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/example/ec-stock-reservation/internal/reconciliation"

// Applier applies one reconciliation message to the durable ledger.
type Applier interface {
	ApplyDelta(ctx context.Context, msg ledger.ReconciliationMessage) (int64, error)
}

// Handler turns queue messages into ledger deltas.
type Handler struct {
	ledger Applier
	logger *zap.Logger
}

func NewHandler(applier Applier, logger *zap.Logger) *Handler {
	return &Handler{ledger: applier, logger: logger.Named("reconciler")}
}

// HandleMessage is a kafka.MessageHandler. Payloads that can never be applied
// are reported as kafka.ErrUnprocessable; any other error is retried.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconciliation.apply")
	defer span.End()

	msg, err := ledger.DecodeMessage(value)
	if err != nil {
		span.SetStatus(codes.Error, "invalid message")
		return fmt.Errorf("%w: %v", kafka.ErrUnprocessable, err)
	}
	span.SetAttributes(
		attribute.String("message.id", msg.MessageID),
		attribute.Int64("product.id", msg.ProductID),
		attribute.Int64("stock.delta", msg.QuantityDelta),
	)

	quantity, err := h.ledger.ApplyDelta(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger write failed")
		if errors.Is(err, ledger.ErrEntryNotFound) || errors.Is(err, ledger.ErrInvalidMessage) {
			return fmt.Errorf("%w: product %d: %v", kafka.ErrUnprocessable, msg.ProductID, err)
		}
		return err
	}

	h.logger.Debug("ledger delta applied",
		zap.String("message_id", msg.MessageID),
		zap.Int64("product_id", msg.ProductID),
		zap.Int64("quantity_delta", msg.QuantityDelta),
		zap.Int64("quantity", quantity),
	)
	return nil
}
