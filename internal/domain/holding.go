package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding position of a user in one instrument. Owned by the holdings store.
type Holding struct {
	UserID        int64           `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchaseDate  time.Time       `json:"purchase_date"`
}

// Instrument classifies the holding symbol.
func (h Holding) Instrument() Instrument {
	return Classify(h.Symbol)
}

// PurchaseValue quantity times purchase price.
func (h Holding) PurchaseValue() decimal.Decimal {
	return h.Quantity.Mul(h.PurchasePrice)
}

// ValueAt quantity times the given price.
func (h Holding) ValueAt(price decimal.Decimal) decimal.Decimal {
	return h.Quantity.Mul(price)
}
