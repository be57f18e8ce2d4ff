package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderRef is the bot's local record of an order it submitted.
// The exchange stays the source of truth for its status.
type OrderRef struct {
	ID              string          `json:"id"`
	ClientOrderID   string          `json:"client_oid,omitempty"`
	Side            Side            `json:"side"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	RequestedPrice  decimal.Decimal `json:"requested_price"`
	PlacedAt        time.Time       `json:"placed_at"`
}

// Position is the persisted decision state for one trading pair.
type Position struct {
	ProductID string `json:"product_id"`

	CostBasis     decimal.Decimal `json:"cost_basis"`
	MaxSinceBuy   decimal.Decimal `json:"max_since_buy"`
	MinSinceSell  decimal.Decimal `json:"min_since_sell"`
	LastSellValue decimal.Decimal `json:"last_sell_value"` // zero until a sell completes after the last buy
	Hold          bool            `json:"hold"`

	OpenBuyOrder  *OrderRef `json:"open_buy_order"`
	OpenSellOrder *OrderRef `json:"open_sell_order"`

	BuyEnabled  bool `json:"buy_enabled"`
	SellEnabled bool `json:"sell_enabled"`

	BalanceBase  decimal.Decimal `json:"balance_base"`
	BalanceQuote decimal.Decimal `json:"balance_quote"`
	CurrentPrice decimal.Decimal `json:"current_price"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSeedPosition builds the state used when nothing usable was persisted:
// holding, with every reference price set to the current market price.
func NewSeedPosition(productID string, price decimal.Decimal) *Position {
	return &Position{
		ProductID:     productID,
		CostBasis:     price,
		MaxSinceBuy:   price,
		MinSinceSell:  price,
		LastSellValue: decimal.Zero,
		Hold:          true,
		BuyEnabled:    true,
		SellEnabled:   true,
		CurrentPrice:  price,
	}
}

// OpenOrder returns the open order for a side, or nil.
func (p *Position) OpenOrder(side Side) *OrderRef {
	if side == SideBuy {
		return p.OpenBuyOrder
	}
	return p.OpenSellOrder
}

// SetOpenOrder replaces the open order slot of ref's side.
func (p *Position) SetOpenOrder(side Side, ref *OrderRef) {
	if side == SideBuy {
		p.OpenBuyOrder = ref
		return
	}
	p.OpenSellOrder = ref
}

func (p *Position) ClearOpenOrder(side Side) {
	p.SetOpenOrder(side, nil)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Position) Clone() *Position {
	c := *p
	if p.OpenBuyOrder != nil {
		ref := *p.OpenBuyOrder
		c.OpenBuyOrder = &ref
	}
	if p.OpenSellOrder != nil {
		ref := *p.OpenSellOrder
		c.OpenSellOrder = &ref
	}
	return &c
}

// Validate rejects states that cannot have been written by the bot.
func (p *Position) Validate() error {
	if !p.CostBasis.IsPositive() {
		return fmt.Errorf("cost basis must be positive, got %s", p.CostBasis)
	}
	if !p.MaxSinceBuy.IsPositive() || !p.MinSinceSell.IsPositive() {
		return fmt.Errorf("extrema must be positive (max=%s min=%s)", p.MaxSinceBuy, p.MinSinceSell)
	}
	if p.LastSellValue.IsNegative() || p.BalanceBase.IsNegative() || p.BalanceQuote.IsNegative() {
		return fmt.Errorf("negative value in balances or last sell")
	}
	for _, ref := range []*OrderRef{p.OpenBuyOrder, p.OpenSellOrder} {
		if ref == nil {
			continue
		}
		if ref.ID == "" {
			return fmt.Errorf("open order without id")
		}
		if !ref.Side.Valid() {
			return fmt.Errorf("open order %s has invalid side %q", ref.ID, ref.Side)
		}
	}
	if p.OpenBuyOrder != nil && p.OpenBuyOrder.Side != SideBuy {
		return fmt.Errorf("buy slot holds a %s order", p.OpenBuyOrder.Side)
	}
	if p.OpenSellOrder != nil && p.OpenSellOrder.Side != SideSell {
		return fmt.Errorf("sell slot holds a %s order", p.OpenSellOrder.Side)
	}
	return nil
}

// Trade is a completed fill recorded in the trade journal.
type Trade struct {
	ID            int64           `json:"id"`
	OrderID       string          `json:"order_id"`
	ProductID     string          `json:"product_id"`
	Side          Side            `json:"side"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	Price         decimal.Decimal `json:"price"`
	ExecutedValue decimal.Decimal `json:"executed_value"`
	Profit        decimal.Decimal `json:"profit"` // sells only
	CreatedAt     time.Time       `json:"created_at"`
}
