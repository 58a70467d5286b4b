package command

// Product Commands
type CreateProduct struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	Price         int64  `json:"price"`
	StockQuantity int64  `json:"stock_quantity"`
	ImagePath     string `json:"image_path"`
	MemberID      string `json:"-"`
}

// ReverseStock returns units to a product outside of an order cancellation.
type ReverseStock struct {
	ProductID int64  `json:"-"`
	Quantity  int64  `json:"quantity"`
	OrderID   string `json:"order_id,omitempty"`
}

// Order Commands
type OrderLine struct {
	ProductID    int64 `json:"product_id"`
	ProductCount int64 `json:"product_count"`
}

type PlaceOrder struct {
	MemberID string
	Lines    []OrderLine
}

type CancelOrder struct {
	OrderID  string
	MemberID string
	IsAdmin  bool
}
