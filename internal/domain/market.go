package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

type Ticker struct {
	ProductID string          `json:"product_id"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Price     decimal.Decimal `json:"price"` // last trade
	Time      time.Time       `json:"time"`
}

// Mid returns (bid+ask)/2.
func (t *Ticker) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(two)
}

// Balances are the account amounts of the traded pair.
type Balances struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusActive   OrderStatus = "active"
	OrderStatusDone     OrderStatus = "done"
	OrderStatusSettled  OrderStatus = "settled"
	OrderStatusRejected OrderStatus = "rejected"
)

// IsFilled reports a terminal-success status.
func (s OrderStatus) IsFilled() bool {
	return s == OrderStatusDone || s == OrderStatusSettled
}

// IsWorking reports an order still waiting on the book or in the matching engine.
func (s OrderStatus) IsWorking() bool {
	return s == OrderStatusPending || s == OrderStatusOpen || s == OrderStatusActive
}

// OrderStatusReport is the exchange's view of an order.
type OrderStatusReport struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Side          Side            `json:"side"`
	Type          string          `json:"type"`
	Status        OrderStatus     `json:"status"`
	DoneReason    string          `json:"done_reason,omitempty"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	ExecutedValue decimal.Decimal `json:"executed_value"`
	Size          decimal.Decimal `json:"size"`
	Funds         decimal.Decimal `json:"funds"`
	Price         decimal.Decimal `json:"price"`
	CreatedAt     time.Time       `json:"created_at"`
}
