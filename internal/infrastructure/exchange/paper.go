package exchange

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
)

// DefaultPaperFee is the taker fee charged by PaperExchange.
var DefaultPaperFee = decimal.RequireFromString("0.0025")

// PaperExchange is an in-memory exchange that fills market orders at once at
// the current price. Use SetPrice to move the market.
type PaperExchange struct {
	mu        sync.Mutex
	productID string
	price     decimal.Decimal
	spread    decimal.Decimal
	fee       decimal.Decimal
	base      decimal.Decimal
	quote     decimal.Decimal
	orders    map[string]*domain.OrderStatusReport
	timeNow   func() time.Time
}

func NewPaperExchange(productID string, price, base, quote decimal.Decimal) *PaperExchange {
	return &PaperExchange{
		productID: productID,
		price:     price,
		fee:       DefaultPaperFee,
		base:      base,
		quote:     quote,
		orders:    make(map[string]*domain.OrderStatusReport),
		timeNow:   time.Now,
	}
}

func (p *PaperExchange) SetPrice(price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
}

// SetSpread sets the distance between bid and ask around the price.
func (p *PaperExchange) SetSpread(spread decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spread = spread
}

func (p *PaperExchange) SetFee(fee decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fee = fee
}

// SetOrderStatus overrides the reported status of a known order.
func (p *PaperExchange) SetOrderStatus(orderID string, status domain.OrderStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

// Orders returns copies of every order placed so far.
func (p *PaperExchange) Orders() []domain.OrderStatusReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderStatusReport, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out
}

func (p *PaperExchange) GetTicker(ctx context.Context) (*domain.Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	half := p.spread.Div(decimal.NewFromInt(2))
	return &domain.Ticker{
		ProductID: p.productID,
		Bid:       p.price.Sub(half),
		Ask:       p.price.Add(half),
		Price:     p.price,
		Time:      p.timeNow(),
	}, nil
}

func (p *PaperExchange) GetAccountBalances(ctx context.Context) (*domain.Balances, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.Balances{Base: p.base, Quote: p.quote}, nil
}

func (p *PaperExchange) PlaceOrder(ctx context.Context, side domain.Side, amount, price decimal.Decimal) (*domain.OrderRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !amount.IsPositive() {
		return nil, &domain.ExchangeError{Op: "place order", StatusCode: http.StatusBadRequest, Message: "amount must be positive"}
	}
	keep := decimal.NewFromInt(1).Sub(p.fee)
	report := &domain.OrderStatusReport{
		ID:        uuid.NewString(),
		ProductID: p.productID,
		Side:      side,
		Type:      "market",
		Status:    domain.OrderStatusDone,
		Price:     p.price,
		CreatedAt: p.timeNow(),
	}

	switch side {
	case domain.SideBuy:
		if amount.GreaterThan(p.quote) {
			return nil, &domain.ExchangeError{Op: "place order", StatusCode: http.StatusBadRequest, Message: "Insufficient funds"}
		}
		spent := amount.Mul(keep)
		size := spent.Div(p.price).RoundFloor(8)
		p.quote = p.quote.Sub(amount)
		p.base = p.base.Add(size)
		report.Funds = amount
		report.FilledSize = size
		report.ExecutedValue = spent
	case domain.SideSell:
		if amount.GreaterThan(p.base) {
			return nil, &domain.ExchangeError{Op: "place order", StatusCode: http.StatusBadRequest, Message: "Insufficient funds"}
		}
		value := amount.Mul(p.price)
		p.base = p.base.Sub(amount)
		p.quote = p.quote.Add(value.Mul(keep))
		report.Size = amount
		report.FilledSize = amount
		report.ExecutedValue = value
	default:
		return nil, errors.Errorf("invalid side %q", side)
	}
	p.orders[report.ID] = report

	return &domain.OrderRef{
		ID:              report.ID,
		Side:            side,
		RequestedAmount: amount,
		RequestedPrice:  price,
		PlacedAt:        report.CreatedAt,
	}, nil
}

// CancelOrder removes a working order. Filled orders are gone from the book
// and report domain.ErrOrderNotFound, as the live exchange does.
func (p *PaperExchange) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok || !o.Status.IsWorking() {
		return domain.ErrOrderNotFound
	}
	delete(p.orders, orderID)
	return nil
}

func (p *PaperExchange) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderStatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	report := *o
	return &report, nil
}

// ListOpenOrders returns the working orders, newest first.
func (p *PaperExchange) ListOpenOrders(ctx context.Context) ([]*domain.OrderStatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.OrderStatusReport
	for _, o := range p.orders {
		if o.Status.IsWorking() {
			report := *o
			out = append(out, &report)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
