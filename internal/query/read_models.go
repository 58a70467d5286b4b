package query

import (
	"github.com/example/ec-stock-reservation/internal/domain/inventory"
	"github.com/example/ec-stock-reservation/internal/domain/product"
)

// ProductView is a catalog entry with its durable stock quantity.
type ProductView struct {
	*product.Product
	Stock int64 `json:"stock"`
}

// StockView compares the live counter with the ledger for one product.
type StockView struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Counter   int64  `json:"counter"`
	Ledger    int64  `json:"ledger"`
	Drift     int64  `json:"drift"`
}

func newStockView(p *product.Product, d *inventory.Drift) *StockView {
	return &StockView{
		ProductID: p.ID,
		Name:      p.Name,
		Counter:   d.Counter,
		Ledger:    d.Ledger,
		Drift:     d.Drift,
	}
}
