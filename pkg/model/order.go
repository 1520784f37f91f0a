package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderExpired OrderStatus = "expired"
)

// Valid returns true if the status is one of the known constants.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderExpired:
		return true
	default:
		return false
	}
}

// Order links a user's purchase of a product to a provider invoice.
// InvoiceID is zero until the invoice is created; DeliveredAt is set exactly
// once when the digital good is handed over.
type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	ProductID   int64           `json:"product_id"`
	InvoiceID   int64           `json:"invoice_id,omitempty"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}
