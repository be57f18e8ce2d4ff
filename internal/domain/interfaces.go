package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange defines the gateway operations the trading core needs.
type Exchange interface {
	GetTicker(ctx context.Context) (*Ticker, error)
	GetAccountBalances(ctx context.Context) (*Balances, error)
	// PlaceOrder submits a market order. For buys amount is quote funds,
	// for sells it is base size; price is informational.
	PlaceOrder(ctx context.Context, side Side, amount, price decimal.Decimal) (*OrderRef, error)
	// CancelOrder returns ErrOrderNotFound when the order is already gone.
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusReport, error)
}

// StateStore persists the Position. SaveState must be atomic.
type StateStore interface {
	// LoadState returns ErrStateNotFound or ErrStateCorrupt when no usable state exists.
	LoadState(ctx context.Context) (*Position, error)
	SaveState(ctx context.Context, p *Position) error
}

// TradeRepository records completed fills.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)
}

// Notifier delivers operator messages. Delivery failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
