package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrEntryNotFound  = errors.New("stock ledger entry not found")
	ErrAlreadySeeded  = errors.New("stock ledger entry already seeded")
	ErrLedgerWrite    = errors.New("stock ledger write failed")
	ErrInvalidSeed    = errors.New("initial quantity must not be negative")
	ErrNoCounterStore = errors.New("counter store not configured")
)

// Store is the durable side of the ledger. Implementations apply a delta and
// record its message id in one local transaction.
type Store interface {
	// Seed creates the entry; an existing entry yields ErrAlreadySeeded.
	Seed(ctx context.Context, productID, quantity int64) error
	// Apply adds delta unless messageID was applied before. It returns the
	// resulting quantity and whether the delta was applied by this call.
	Apply(ctx context.Context, messageID string, productID, delta int64) (int64, bool, error)
	Get(ctx context.Context, productID int64) (int64, error)
	Delete(ctx context.Context, productID int64) error
}

// Counter is the slice of the counter store that seeding needs.
type Counter interface {
	Set(ctx context.Context, productID, value int64) error
}

type Service struct {
	store   Store
	counter Counter
	logger  *zap.Logger
}

// NewService builds the ledger service. counter may be nil in processes that
// never seed, such as the reconciler.
func NewService(store Store, counter Counter, logger *zap.Logger) *Service {
	return &Service{store: store, counter: counter, logger: logger.Named("ledger")}
}

// ApplyDelta applies one reconciliation message. A redelivered message id is a
// no-op that reports the current quantity.
func (s *Service) ApplyDelta(ctx context.Context, msg ReconciliationMessage) (int64, error) {
	if err := msg.Validate(); err != nil {
		return 0, err
	}

	quantity, applied, err := s.store.Apply(ctx, msg.MessageID, msg.ProductID, msg.QuantityDelta)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: product %d: %v", ErrLedgerWrite, msg.ProductID, err)
	}

	if !applied {
		s.logger.Info("duplicate reconciliation message skipped",
			zap.String("message_id", msg.MessageID),
			zap.Int64("product_id", msg.ProductID),
		)
	}
	return quantity, nil
}

func (s *Service) Read(ctx context.Context, productID int64) (int64, error) {
	return s.store.Get(ctx, productID)
}

// Seed writes the initial quantity to the ledger and the counter store. If the
// counter cannot be set the ledger entry is removed again so the two never
// start in disagreement.
func (s *Service) Seed(ctx context.Context, productID, quantity int64) error {
	if quantity < 0 {
		return ErrInvalidSeed
	}
	if s.counter == nil {
		return ErrNoCounterStore
	}

	if err := s.store.Seed(ctx, productID, quantity); err != nil {
		return fmt.Errorf("failed to seed ledger: %w", err)
	}

	if err := s.counter.Set(ctx, productID, quantity); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), productID); delErr != nil {
			s.logger.Error("failed to remove ledger entry after counter seed failure",
				zap.Int64("product_id", productID),
				zap.Error(delErr),
			)
		}
		return fmt.Errorf("failed to seed counter: %w", err)
	}

	return nil
}

// Remove deletes the ledger entry of a product whose registration failed later on.
func (s *Service) Remove(ctx context.Context, productID int64) error {
	return s.store.Delete(ctx, productID)
}
