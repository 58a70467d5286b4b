package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-stock-reservation/internal/domain/product"
)

// MockProductRepository is an in-memory product.Repository for testing
type MockProductRepository struct {
	mu       sync.RWMutex
	products map[int64]*product.Product
	nextID   int64

	// For tracking calls in tests
	CreateCalls []*product.Product
	DeleteCalls []int64

	CreateErr error
	DeleteErr error
}

// NewMockProductRepository creates a new MockProductRepository
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{products: make(map[int64]*product.Product)}
}

func (m *MockProductRepository) Create(ctx context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, p)
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *MockProductRepository) FindByID(ctx context.Context, id int64) (*product.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProductRepository) List(ctx context.Context) ([]*product.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*product.Product, 0, len(m.products))
	for _, p := range m.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockProductRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls = append(m.DeleteCalls, id)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.products, id)
	return nil
}

// Put stores a product directly for testing
func (m *MockProductRepository) Put(p *product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	if p.ID > m.nextID {
		m.nextID = p.ID
	}
}
