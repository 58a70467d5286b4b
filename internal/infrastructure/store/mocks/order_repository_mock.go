package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-stock-reservation/internal/domain/order"
)

// MockOrderRepository is an in-memory order.Repository for testing
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order

	// For tracking calls in tests
	SaveCalls         []*order.Order
	UpdateStatusCalls []UpdateStatusCall

	SaveErr         error
	UpdateStatusErr error
}

// UpdateStatusCall records parameters passed to UpdateStatus
type UpdateStatusCall struct {
	ID   string
	From order.Status
	To   order.Status
}

// NewMockOrderRepository creates a new MockOrderRepository
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*order.Order)}
}

func (m *MockOrderRepository) Save(ctx context.Context, o *order.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls = append(m.SaveCalls, o)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *o
	cp.Lines = append([]order.Line(nil), o.Lines...)
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepository) ListByMember(ctx context.Context, memberID string) ([]*order.Order, error) {
	return m.list(func(o *order.Order) bool { return o.MemberID == memberID }), nil
}

func (m *MockOrderRepository) ListAll(ctx context.Context) ([]*order.Order, error) {
	return m.list(func(*order.Order) bool { return true }), nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{ID: id, From: from, To: to})
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	o, ok := m.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != from {
		return order.ErrOrderCanceled
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// Count returns the number of stored orders
func (m *MockOrderRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

func (m *MockOrderRepository) list(keep func(*order.Order) bool) []*order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
