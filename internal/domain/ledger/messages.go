package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Reasons carried by a reconciliation message
const (
	ReasonOrderAdmitted = "OrderAdmitted"
	ReasonStockReversed = "StockReversed"
)

var ErrInvalidMessage = errors.New("invalid reconciliation message")

// ReconciliationMessage is one unit of work for the durable ledger.
// QuantityDelta is the signed change: admissions carry -q, reversals +q.
type ReconciliationMessage struct {
	MessageID     string    `json:"message_id"`
	ProductID     int64     `json:"product_id"`
	QuantityDelta int64     `json:"quantity_delta"`
	OrderID       string    `json:"order_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewReconciliationMessage(productID, delta int64, orderID, reason string) ReconciliationMessage {
	return ReconciliationMessage{
		MessageID:     uuid.New().String(),
		ProductID:     productID,
		QuantityDelta: delta,
		OrderID:       orderID,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}
}

// PartitionKey keeps every message of one product on the same partition.
func (m ReconciliationMessage) PartitionKey() string {
	return strconv.FormatInt(m.ProductID, 10)
}

func (m ReconciliationMessage) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("%w: missing message_id", ErrInvalidMessage)
	}
	if m.ProductID <= 0 {
		return fmt.Errorf("%w: product_id must be positive", ErrInvalidMessage)
	}
	if m.QuantityDelta == 0 {
		return fmt.Errorf("%w: quantity_delta must be non-zero", ErrInvalidMessage)
	}
	return nil
}

// DecodeMessage parses and validates a message body from the queue.
func DecodeMessage(value []byte) (ReconciliationMessage, error) {
	var m ReconciliationMessage
	if err := json.Unmarshal(value, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}
