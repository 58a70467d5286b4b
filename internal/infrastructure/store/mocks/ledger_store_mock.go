package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-stock-reservation/internal/domain/ledger"
)

// MockLedgerStore is an in-memory ledger.Store for testing
type MockLedgerStore struct {
	mu      sync.Mutex
	entries map[int64]int64
	applied map[string]bool

	// For tracking calls in tests
	ApplyCalls  []ApplyCall
	SeedCalls   []SeedCall
	DeleteCalls []int64

	ApplyErr  error
	SeedErr   error
	DeleteErr error
	GetErr    error
}

// ApplyCall records parameters passed to Apply
type ApplyCall struct {
	MessageID string
	ProductID int64
	Delta     int64
}

// SeedCall records parameters passed to Seed
type SeedCall struct {
	ProductID int64
	Quantity  int64
}

// NewMockLedgerStore creates a new MockLedgerStore
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		entries: make(map[int64]int64),
		applied: make(map[string]bool),
	}
}

func (m *MockLedgerStore) Seed(ctx context.Context, productID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SeedCalls = append(m.SeedCalls, SeedCall{ProductID: productID, Quantity: quantity})
	if m.SeedErr != nil {
		return m.SeedErr
	}
	if _, ok := m.entries[productID]; ok {
		return ledger.ErrAlreadySeeded
	}
	m.entries[productID] = quantity
	return nil
}

func (m *MockLedgerStore) Apply(ctx context.Context, messageID string, productID, delta int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ApplyCalls = append(m.ApplyCalls, ApplyCall{MessageID: messageID, ProductID: productID, Delta: delta})
	if m.ApplyErr != nil {
		return 0, false, m.ApplyErr
	}
	current, ok := m.entries[productID]
	if !ok {
		return 0, false, ledger.ErrEntryNotFound
	}
	if m.applied[messageID] {
		return current, false, nil
	}
	m.applied[messageID] = true
	m.entries[productID] = current + delta
	return current + delta, true, nil
}

func (m *MockLedgerStore) Get(ctx context.Context, productID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return 0, m.GetErr
	}
	q, ok := m.entries[productID]
	if !ok {
		return 0, ledger.ErrEntryNotFound
	}
	return q, nil
}

func (m *MockLedgerStore) Delete(ctx context.Context, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls = append(m.DeleteCalls, productID)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.entries, productID)
	return nil
}

// SetEntry sets a ledger quantity directly for testing
func (m *MockLedgerStore) SetEntry(productID, quantity int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[productID] = quantity
}

// HasEntry reports whether a product has a ledger entry
func (m *MockLedgerStore) HasEntry(productID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[productID]
	return ok
}
