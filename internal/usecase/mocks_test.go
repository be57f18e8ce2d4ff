package usecase_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type PlacedOrder struct {
	Side   domain.Side
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// MockExchange is a scriptable domain.Exchange. Orders it accepts start out
// open; tests move them along through Statuses.
type MockExchange struct {
	mu sync.Mutex

	Ticker      *domain.Ticker
	TickerErr   error
	Balances    *domain.Balances
	BalancesErr error

	Statuses  map[string]*domain.OrderStatusReport
	StatusErr map[string]error
	PlaceErr  error
	CancelErr map[string]error

	Placed    []PlacedOrder
	Cancelled []string
	nextID    int
}

func NewMockExchange(price string) *MockExchange {
	p := dec(price)
	return &MockExchange{
		Ticker:    &domain.Ticker{ProductID: "BTC-USD", Bid: p, Ask: p, Price: p},
		Balances:  &domain.Balances{},
		Statuses:  make(map[string]*domain.OrderStatusReport),
		StatusErr: make(map[string]error),
		CancelErr: make(map[string]error),
	}
}

func (m *MockExchange) SetPrice(price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := dec(price)
	m.Ticker = &domain.Ticker{ProductID: "BTC-USD", Bid: p, Ask: p, Price: p}
}

func (m *MockExchange) SetStatus(id string, status domain.OrderStatus, filled, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses[id] = &domain.OrderStatusReport{
		ID:            id,
		Status:        status,
		FilledSize:    dec(filled),
		ExecutedValue: dec(value),
	}
}

func (m *MockExchange) GetTicker(ctx context.Context) (*domain.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TickerErr != nil {
		return nil, m.TickerErr
	}
	t := *m.Ticker
	return &t, nil
}

func (m *MockExchange) GetAccountBalances(ctx context.Context) (*domain.Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalancesErr != nil {
		return nil, m.BalancesErr
	}
	b := *m.Balances
	return &b, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, side domain.Side, amount, price decimal.Decimal) (*domain.OrderRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceErr != nil {
		return nil, m.PlaceErr
	}
	m.nextID++
	id := fmt.Sprintf("order-%d", m.nextID)
	m.Placed = append(m.Placed, PlacedOrder{Side: side, Amount: amount, Price: price})
	m.Statuses[id] = &domain.OrderStatusReport{ID: id, Side: side, Status: domain.OrderStatusOpen}
	return &domain.OrderRef{ID: id, Side: side, RequestedAmount: amount, RequestedPrice: price}, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	if err := m.CancelErr[orderID]; err != nil {
		return err
	}
	if _, ok := m.Statuses[orderID]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(m.Statuses, orderID)
	return nil
}

func (m *MockExchange) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderStatusReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.StatusErr[orderID]; err != nil {
		return nil, err
	}
	r, ok := m.Statuses[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	report := *r
	return &report, nil
}

type MockStateStore struct {
	mu      sync.Mutex
	State   *domain.Position
	LoadErr error
	SaveErr error
	Saves   int
}

func (m *MockStateStore) LoadState(ctx context.Context) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.State == nil {
		return nil, domain.ErrStateNotFound
	}
	return m.State.Clone(), nil
}

func (m *MockStateStore) SaveState(ctx context.Context, p *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.State = p.Clone()
	m.Saves++
	return nil
}

func (m *MockStateStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}

type MockTradeRepo struct {
	Trades  []*domain.Trade
	SaveErr error
}

func (m *MockTradeRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Trades = append(m.Trades, t)
	return nil
}

func (m *MockTradeRepo) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return m.Trades, nil
}

type MockNotifier struct {
	mu       sync.Mutex
	Messages []string
}

func (m *MockNotifier) Notify(ctx context.Context, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, message)
}
