package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/infrastructure/exchange"
	"github.com/vitos/coinbot/internal/usecase"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type controllerFixture struct {
	ex       domain.Exchange
	store    *MockStateStore
	notifier *MockNotifier
	trades   *MockTradeRepo
	c        *usecase.Controller
}

func newController(ex domain.Exchange, store *MockStateStore, logger *zap.Logger) *controllerFixture {
	cfg := usecase.ControllerConfig{ProductID: "BTC-USD", Interval: 5 * time.Millisecond, BuyEnabled: true, SellEnabled: true}
	return newControllerWithConfig(cfg, ex, store, logger)
}

func newControllerWithConfig(cfg usecase.ControllerConfig, ex domain.Exchange, store *MockStateStore, logger *zap.Logger) *controllerFixture {
	f := &controllerFixture{
		ex:       ex,
		store:    store,
		notifier: &MockNotifier{},
		trades:   &MockTradeRepo{},
	}
	f.c = usecase.NewController(
		cfg,
		ex,
		store,
		usecase.NewTradingStrategy(usecase.DefaultStrategyParams()),
		usecase.NewOrderReconciler(ex, f.trades, f.notifier, logger),
		usecase.NewTradeExecutor(ex, f.notifier, logger),
		f.notifier,
		logger,
	)
	return f
}

func TestController_StartSeedsFromTicker(t *testing.T) {
	tests := []struct {
		name    string
		loadErr error
	}{
		{"missing state", nil},
		{"corrupt state", fmt.Errorf("%w: unexpected EOF", domain.ErrStateCorrupt)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewMockExchange("50000")
			ex.Ticker.Bid = dec("49990")
			ex.Ticker.Ask = dec("50020")
			store := &MockStateStore{LoadErr: tt.loadErr}
			f := newController(ex, store, zap.NewNop())

			require.NoError(t, f.c.Start(context.Background()))

			require.Equal(t, 1, store.SaveCount(), "seeded state is persisted before trading")
			p := store.State
			assert.Equal(t, "50000", p.CostBasis.String())
			assert.Equal(t, "50000", p.MinSinceSell.String())
			assert.Equal(t, "50000", p.MaxSinceBuy.String())
			assert.True(t, p.LastSellValue.IsZero())
			assert.True(t, p.Hold)
			assert.Nil(t, p.OpenBuyOrder)
			assert.Nil(t, p.OpenSellOrder)
			assert.NotNil(t, f.c.Snapshot())
		})
	}
}

func TestController_StartResumesAndAppliesEnables(t *testing.T) {
	saved := activePosition("120")
	saved.CostBasis = dec("110.275")
	saved.LastSellValue = dec("115")
	saved.OpenSellOrder = &domain.OrderRef{ID: "s1", Side: domain.SideSell}
	store := &MockStateStore{State: saved}

	cfg := usecase.ControllerConfig{ProductID: "BTC-USD", BuyEnabled: false, SellEnabled: true}
	f := newControllerWithConfig(cfg, NewMockExchange("120"), store, zap.NewNop())

	require.NoError(t, f.c.Start(context.Background()))

	p := f.c.Snapshot()
	assert.Equal(t, "110.275", p.CostBasis.String())
	assert.Equal(t, "115", p.LastSellValue.String())
	assert.Equal(t, "s1", p.OpenSellOrder.ID)
	assert.False(t, p.BuyEnabled)
	assert.True(t, p.SellEnabled)
}

func TestController_StartErrors(t *testing.T) {
	t.Run("product mismatch", func(t *testing.T) {
		saved := activePosition("100")
		saved.ProductID = "ETH-USD"
		f := newController(NewMockExchange("100"), &MockStateStore{State: saved}, zap.NewNop())
		assert.Error(t, f.c.Start(context.Background()))
	})
	t.Run("store failure is not reseeded", func(t *testing.T) {
		store := &MockStateStore{LoadErr: errors.New("permission denied")}
		f := newController(NewMockExchange("100"), store, zap.NewNop())
		assert.Error(t, f.c.Start(context.Background()))
		assert.Zero(t, store.SaveCount())
	})
	t.Run("ticker unavailable", func(t *testing.T) {
		ex := NewMockExchange("100")
		ex.TickerErr = errors.New("connection refused")
		f := newController(ex, &MockStateStore{}, zap.NewNop())
		assert.Error(t, f.c.Start(context.Background()))
	})
}

func TestController_TickBeforeStart(t *testing.T) {
	f := newController(NewMockExchange("100"), &MockStateStore{}, zap.NewNop())
	assert.Error(t, f.c.Tick(context.Background()))
}

func TestController_TickPlacesAndPersists(t *testing.T) {
	saved := activePosition("100")
	store := &MockStateStore{State: saved}
	ex := NewMockExchange("97")
	ex.Ticker.Bid = dec("96.99")
	ex.Ticker.Ask = dec("97.01")
	ex.Balances = &domain.Balances{Base: dec("1"), Quote: dec("0")}
	f := newController(ex, store, zap.NewNop())

	require.NoError(t, f.c.Start(context.Background()))
	require.NoError(t, f.c.Tick(context.Background()))

	require.Len(t, ex.Placed, 1)
	assert.Equal(t, domain.SideSell, ex.Placed[0].Side)
	assert.Equal(t, "97", ex.Placed[0].Price.String(), "mid of bid and ask")
	assert.Equal(t, 2, store.SaveCount())
	require.NotNil(t, store.State.OpenSellOrder)
	assert.Equal(t, "order-1", store.State.OpenSellOrder.ID)
}

func TestController_TickTransientFailureSkipsTick(t *testing.T) {
	store := &MockStateStore{State: activePosition("100")}
	ex := NewMockExchange("100")
	f := newController(ex, store, zap.NewNop())
	require.NoError(t, f.c.Start(context.Background()))

	ex.BalancesErr = &domain.ExchangeError{Op: "get accounts", StatusCode: 503}
	err := f.c.Tick(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrAborted))
	assert.Equal(t, 1, store.SaveCount())
}

func TestController_TickReconcileErrorKeepsOrder(t *testing.T) {
	saved := activePosition("100")
	saved.OpenSellOrder = &domain.OrderRef{ID: "s1", Side: domain.SideSell}
	store := &MockStateStore{State: saved}
	ex := NewMockExchange("97")
	ex.Balances = &domain.Balances{Base: dec("1")}
	ex.StatusErr["s1"] = errors.New("read timeout")

	core, logs := observer.New(zap.WarnLevel)
	f := newController(ex, store, zap.New(core))
	require.NoError(t, f.c.Start(context.Background()))
	require.NoError(t, f.c.Tick(context.Background()))

	assert.Equal(t, "s1", store.State.OpenSellOrder.ID)
	assert.Empty(t, ex.Placed, "no second order while the first is unresolved")
	retries := logs.FilterField(zap.String("event", "retry"))
	assert.Equal(t, 1, retries.Len())
}

func TestController_TickUnreconciledSideTakesNoAction(t *testing.T) {
	saved := activePosition("97")
	saved.OpenSellOrder = &domain.OrderRef{ID: "s1", Side: domain.SideSell, RequestedAmount: dec("1")}
	store := &MockStateStore{State: saved}
	ex := NewMockExchange("97")
	// the sell already filled, but the first status query fails
	ex.SetStatus("s1", domain.OrderStatusDone, "1", "97")
	ex.StatusErr["s1"] = errors.New("read timeout")
	ex.Balances = &domain.Balances{Base: dec("0"), Quote: dec("97")}

	f := newController(ex, store, zap.NewNop())
	require.NoError(t, f.c.Start(context.Background()))
	require.NoError(t, f.c.Tick(context.Background()))

	assert.Empty(t, ex.Cancelled, "an order with unknown status is not cancelled")
	require.NotNil(t, store.State.OpenSellOrder)
	assert.Equal(t, "s1", store.State.OpenSellOrder.ID)
	assert.True(t, store.State.LastSellValue.IsZero())

	delete(ex.StatusErr, "s1")
	require.NoError(t, f.c.Tick(context.Background()))
	assert.Nil(t, store.State.OpenSellOrder)
	assert.Equal(t, "97", store.State.LastSellValue.String())
	require.Len(t, f.trades.Trades, 1)

	ex.SetPrice("120")
	require.NoError(t, f.c.Tick(context.Background()))
	require.Len(t, ex.Placed, 1)
	assert.Equal(t, domain.SideBuy, ex.Placed[0].Side)
}

func TestController_TickAbortsOnFatalStatus(t *testing.T) {
	saved := activePosition("100")
	saved.OpenSellOrder = &domain.OrderRef{ID: "s1", Side: domain.SideSell}
	saved.OpenBuyOrder = &domain.OrderRef{ID: "b1", Side: domain.SideBuy}
	store := &MockStateStore{State: saved}
	ex := NewMockExchange("100")
	ex.SetStatus("s1", domain.OrderStatus("expired"), "0", "0")
	ex.SetStatus("b1", domain.OrderStatusOpen, "0", "0")

	core, logs := observer.New(zap.InfoLevel)
	f := newController(ex, store, zap.New(core))
	require.NoError(t, f.c.Start(context.Background()))

	err := f.c.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrAborted)
	assert.ErrorContains(t, err, "fatal order fault")

	assert.ElementsMatch(t, []string{"s1", "b1"}, ex.Cancelled)
	assert.Nil(t, store.State.OpenBuyOrder)
	assert.Equal(t, 2, store.SaveCount(), "final state is persisted")

	aborts := logs.FilterField(zap.String("event", "abort"))
	require.Equal(t, 1, aborts.Len())
	assert.Equal(t, zap.ErrorLevel, aborts.All()[0].Level)
	require.NotEmpty(t, f.notifier.Messages)
	assert.Contains(t, f.notifier.Messages[0], "FATAL")
}

func TestController_RunStopsOnCancelWithoutCancellingOrders(t *testing.T) {
	saved := activePosition("100")
	saved.OpenSellOrder = &domain.OrderRef{ID: "s1", Side: domain.SideSell}
	store := &MockStateStore{State: saved}
	ex := NewMockExchange("97")
	ex.Balances = &domain.Balances{Base: dec("1")}
	ex.SetStatus("s1", domain.OrderStatusOpen, "0", "0")
	f := newController(ex, store, zap.NewNop())

	var published atomic.Int32
	f.c.Subscribe(func(p *domain.Position) { published.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()

	require.Eventually(t, func() bool { return store.SaveCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, ex.Cancelled)
	assert.GreaterOrEqual(t, published.Load(), int32(3))
	assert.Equal(t, "s1", store.State.OpenSellOrder.ID)
}

func TestController_RunReturnsAbort(t *testing.T) {
	saved := activePosition("100")
	saved.OpenBuyOrder = &domain.OrderRef{ID: "b1", Side: domain.SideBuy}
	ex := NewMockExchange("100")
	ex.SetStatus("b1", domain.OrderStatus("stopped"), "0", "0")
	f := newController(ex, &MockStateStore{State: saved}, zap.NewNop())

	err := f.c.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrAborted)
}

// TestController_PaperRoundTrip drives a full hold, sell, re-buy cycle
// against the in-memory exchange.
func TestController_PaperRoundTrip(t *testing.T) {
	ctx := context.Background()
	paper := exchange.NewPaperExchange("BTC-USD", dec("100"), dec("1"), decimal.Zero)
	store := &MockStateStore{}
	f := newController(paper, store, zap.NewNop())
	require.NoError(t, f.c.Start(ctx))

	tick := func(price string) *domain.Position {
		t.Helper()
		paper.SetPrice(dec(price))
		require.NoError(t, f.c.Tick(ctx))
		return f.c.Snapshot()
	}

	p := tick("106")
	assert.False(t, p.Hold, "hold released at 105")
	assert.Equal(t, "106", p.MaxSinceBuy.String())

	p = tick("103") // 106 * 0.98 = 103.88
	require.NotNil(t, p.OpenSellOrder)

	p = tick("103")
	assert.Nil(t, p.OpenSellOrder)
	assert.Equal(t, "103", p.LastSellValue.String())
	assert.Equal(t, "103", p.MinSinceSell.String())
	assert.Nil(t, p.OpenBuyOrder, "103 is below the 104.03 buy stop")

	p = tick("104.5")
	require.NotNil(t, p.OpenBuyOrder)
	assert.Equal(t, "102.74", p.OpenBuyOrder.RequestedAmount.String())

	p = tick("104.5")
	assert.Nil(t, p.OpenBuyOrder)
	assert.True(t, p.LastSellValue.IsZero())
	assert.Equal(t, "104.76125", p.CostBasis.String())
	assert.Equal(t, "104.5", p.MaxSinceBuy.String())
	assert.True(t, p.BalanceBase.IsPositive())

	require.Len(t, f.trades.Trades, 2)
	assert.Equal(t, domain.SideSell, f.trades.Trades[0].Side)
	assert.Equal(t, domain.SideBuy, f.trades.Trades[1].Side)
}

func TestController_LogsBannerAndTickStatus(t *testing.T) {
	store := &MockStateStore{LoadErr: domain.ErrStateNotFound}
	ex := NewMockExchange("100")
	ex.Balances = &domain.Balances{Base: dec("2"), Quote: dec("10")}

	core, logs := observer.New(zap.DebugLevel)
	f := newController(ex, store, zap.New(core))
	require.NoError(t, f.c.Start(context.Background()))
	require.NoError(t, f.c.Tick(context.Background()))

	banner := logs.FilterMessage("Coinbot initialized").All()
	require.Len(t, banner, 1)
	fields := banner[0].ContextMap()
	assert.Equal(t, true, fields["buys_enabled"])
	assert.Contains(t, fields["rule_hold"], "1.05")

	status := logs.FilterMessage("Tick").All()
	require.NotEmpty(t, status)
	fields = status[len(status)-1].ContextMap()
	assert.Equal(t, "100", fields["price"])
	assert.Equal(t, "210", fields["value"])
	assert.Equal(t, "105", fields["hold_until"])
}
