package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusOrdered  Status = "ORDERED"
	StatusCanceled Status = "CANCELED"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyOrder    = errors.New("order must have at least one line")
	ErrInvalidLine   = errors.New("order line needs a product and a positive quantity")
	ErrOrderCanceled = errors.New("order is already canceled")
	ErrInvalidStatus = errors.New("invalid order status transition")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusOrdered:  {StatusCanceled},
	StatusCanceled: {}, // terminal state
}

type Line struct {
	ProductID int64 `json:"product_id" db:"product_id"`
	Quantity  int64 `json:"quantity" db:"quantity"`
}

type Order struct {
	ID        string    `json:"id" db:"id"`
	MemberID  string    `json:"member_id" db:"member_id"`
	Lines     []Line    `json:"lines"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// New builds an order that has not been admitted yet. The id is assigned up
// front so reconciliation messages can reference it.
func New(memberID string, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for i, l := range lines {
		if l.ProductID <= 0 || l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidLine, i)
		}
	}

	now := time.Now()
	return &Order{
		ID:        uuid.New().String(),
		MemberID:  memberID,
		Lines:     append([]Line(nil), lines...),
		Status:    StatusOrdered,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Cancel moves the order to CANCELED.
func (o *Order) Cancel(at time.Time) error {
	if o.Status == StatusCanceled {
		return ErrOrderCanceled
	}
	if !o.CanTransitionTo(StatusCanceled) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, StatusCanceled)
	}
	o.Status = StatusCanceled
	o.UpdatedAt = at
	return nil
}

func (o *Order) OwnedBy(memberID string) bool {
	return o.MemberID == memberID
}

type Repository interface {
	// Save inserts the order with all of its lines atomically.
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	ListByMember(ctx context.Context, memberID string) ([]*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
	// UpdateStatus changes the status only if it is still from, returning
	// ErrOrderCanceled or ErrOrderNotFound otherwise.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
}

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger.Named("order")}
}

// Place persists an admitted order.
func (s *Service) Place(ctx context.Context, o *Order) error {
	if err := s.repo.Save(ctx, o); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("member_id", o.MemberID),
		zap.Int("lines", len(o.Lines)),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListByMember(ctx context.Context, memberID string) ([]*Order, error) {
	return s.repo.ListByMember(ctx, memberID)
}

func (s *Service) ListAll(ctx context.Context) ([]*Order, error) {
	return s.repo.ListAll(ctx)
}

// Cancel marks the order canceled. The status update is conditional so two
// concurrent cancels cannot both succeed.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := o.Cancel(now); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusOrdered, StatusCanceled, now); err != nil {
		return nil, err
	}

	s.logger.Info("order canceled", zap.String("order_id", id))
	return o, nil
}
