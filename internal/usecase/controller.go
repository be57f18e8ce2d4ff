package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/metrics"
	"go.uber.org/zap"
)

type ControllerConfig struct {
	ProductID   string
	Interval    time.Duration
	BuyEnabled  bool
	SellEnabled bool
}

// Controller drives the tick loop: fetch market data, reconcile open orders,
// evaluate the strategy, execute its actions and persist the position.
// Ticks never overlap.
type Controller struct {
	cfg        ControllerConfig
	exchange   domain.Exchange
	store      domain.StateStore
	strategy   *TradingStrategy
	reconciler *OrderReconciler
	executor   *TradeExecutor
	notifier   domain.Notifier
	logger     *zap.Logger
	timeNow    func() time.Time

	position *domain.Position
	snapshot atomic.Pointer[domain.Position]

	obsMu     sync.Mutex
	observers []func(*domain.Position)
}

func NewController(
	cfg ControllerConfig,
	exchange domain.Exchange,
	store domain.StateStore,
	strategy *TradingStrategy,
	reconciler *OrderReconciler,
	executor *TradeExecutor,
	notifier domain.Notifier,
	logger *zap.Logger,
) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Controller{
		cfg:        cfg,
		exchange:   exchange,
		store:      store,
		strategy:   strategy,
		reconciler: reconciler,
		executor:   executor,
		notifier:   notifier,
		logger:     logger,
		timeNow:    time.Now,
	}
}

// Subscribe registers fn to receive a copy of the position after every tick.
func (c *Controller) Subscribe(fn func(*domain.Position)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Snapshot returns the position as of the last completed tick, or nil before Start.
func (c *Controller) Snapshot() *domain.Position {
	return c.snapshot.Load()
}

// Strategy exposes the strategy for threshold display.
func (c *Controller) Strategy() *TradingStrategy {
	return c.strategy
}

// Start loads the persisted position, or seeds a fresh one from the ticker
// when none exists or it is unreadable, and persists it immediately.
func (c *Controller) Start(ctx context.Context) error {
	ticker, err := c.exchange.GetTicker(ctx)
	if err != nil {
		return fmt.Errorf("initial ticker: %w", err)
	}

	pos, err := c.store.LoadState(ctx)
	switch {
	case err == nil && pos.ProductID != "" && pos.ProductID != c.cfg.ProductID:
		return fmt.Errorf("saved state belongs to %s, configured product is %s", pos.ProductID, c.cfg.ProductID)
	case err == nil:
		c.logger.Info("Resumed saved state",
			zap.Stringer("cost_basis", pos.CostBasis),
			zap.Bool("hold", pos.Hold),
			zap.Bool("open_buy", pos.OpenBuyOrder != nil),
			zap.Bool("open_sell", pos.OpenSellOrder != nil))
	case errors.Is(err, domain.ErrStateNotFound), errors.Is(err, domain.ErrStateCorrupt):
		price := ticker.Price
		if !price.IsPositive() {
			price = ticker.Mid()
		}
		if !price.IsPositive() {
			return fmt.Errorf("cannot seed state: ticker has no price")
		}
		if errors.Is(err, domain.ErrStateCorrupt) {
			c.logger.Warn("Saved state unusable, reseeding from market price",
				zap.Error(err), zap.Stringer("price", price))
		} else {
			c.logger.Info("No saved state, seeding from market price", zap.Stringer("price", price))
		}
		pos = domain.NewSeedPosition(c.cfg.ProductID, price)
	default:
		return fmt.Errorf("load state: %w", err)
	}

	pos.ProductID = c.cfg.ProductID
	pos.BuyEnabled = c.cfg.BuyEnabled
	pos.SellEnabled = c.cfg.SellEnabled

	if bal, err := c.exchange.GetAccountBalances(ctx); err != nil {
		c.logger.Warn("Initial balances unavailable, keeping saved values", zap.Error(err))
	} else {
		pos.BalanceBase = bal.Base
		pos.BalanceQuote = bal.Quote
	}

	c.position = pos
	if err := c.persist(ctx); err != nil {
		return err
	}
	c.publish()

	p := c.strategy.Params()
	c.logger.Info("Coinbot initialized",
		zap.String("product_id", pos.ProductID),
		zap.Stringer("balance_base", pos.BalanceBase),
		zap.Stringer("balance_quote", pos.BalanceQuote),
		zap.Bool("buys_enabled", pos.BuyEnabled),
		zap.Bool("sells_enabled", pos.SellEnabled),
		zap.String("rule_hold", "hold until "+p.HoldGain.String()+"x basis"),
		zap.String("rule_sell", "sell below "+p.SellTrail.String()+"x max-since-buy or "+p.SellStopLoss.String()+"x basis"),
		zap.String("rule_buy", "buy above "+p.BuyStopRise.String()+"x last sell, or "+p.BuyRebound.String()+"x min-since-sell while below basis"))
	return nil
}

// Tick runs one iteration. It returns domain.ErrAborted (wrapped) after the
// abort path; any other error is transient and the next tick retries.
func (c *Controller) Tick(ctx context.Context) error {
	if c.position == nil {
		return errors.New("controller not started")
	}
	p := c.position

	ticker, err := c.exchange.GetTicker(ctx)
	if err != nil {
		return fmt.Errorf("ticker: %w", err)
	}
	bal, err := c.exchange.GetAccountBalances(ctx)
	if err != nil {
		return fmt.Errorf("balances: %w", err)
	}
	p.CurrentPrice = ticker.Mid()
	p.BalanceBase = bal.Base
	p.BalanceQuote = bal.Quote

	// A side whose order could not be reconciled gets no action this tick:
	// the order may have filled and the position does not reflect it yet.
	blocked := make(map[domain.Side]bool, 2)
	for _, side := range []domain.Side{domain.SideSell, domain.SideBuy} {
		ref := p.OpenOrder(side)
		if ref == nil {
			continue
		}
		if _, err := c.reconciler.Reconcile(ctx, p, ref, p.CurrentPrice); err != nil {
			if errors.Is(err, domain.ErrFatalOrderFault) {
				return c.abort(ctx, err)
			}
			blocked[side] = true
			c.logger.Warn("Order reconcile failed, retrying next tick",
				zap.Error(err),
				zap.String("event", "retry"),
				zap.String("side", string(side)),
				zap.String("order_id", ref.ID))
		}
	}

	c.logStatus(p)

	decision := c.strategy.Evaluate(p)
	for _, action := range decision.Actions() {
		if blocked[action.Side] {
			continue
		}
		if err := c.executor.Execute(ctx, p, action); err != nil {
			c.logger.Warn("Order action failed, retrying next tick",
				zap.Error(err),
				zap.String("event", "retry"),
				zap.String("action", action.Kind.String()),
				zap.String("side", string(action.Side)),
				zap.Stringer("amount", action.Amount),
				zap.Stringer("price", action.Price))
		}
	}

	if err := c.persist(ctx); err != nil {
		return err
	}
	c.publish()
	return nil
}

// Run starts the controller and ticks every interval until ctx is cancelled.
// A tick in flight when ctx is cancelled runs to completion so the saved state
// matches what was sent to the exchange. Open orders are left in place.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	tickCtx := context.WithoutCancel(ctx)
	for {
		err := c.Tick(tickCtx)
		switch {
		case errors.Is(err, domain.ErrAborted):
			metrics.IncTick("abort")
			return err
		case err != nil:
			metrics.IncTick("retry")
			c.logger.Warn("Tick failed, retrying", zap.Error(err), zap.String("event", "retry"))
		default:
			metrics.IncTick("ok")
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Shutting down controller, open orders left in place")
			return nil
		case <-ticker.C:
		}
	}
}

// abort cancels every open order, persists the final state and returns ErrAborted.
func (c *Controller) abort(ctx context.Context, cause error) error {
	metrics.IncAbort()
	c.logger.Error("Fatal order fault, cancelling all orders and stopping",
		zap.Error(cause),
		zap.String("event", "abort"),
		zap.Bool("fatal", true))
	c.notifier.Notify(ctx, fmt.Sprintf("FATAL: %v, cancelling all orders and exiting", cause))

	if err := c.executor.CancelAll(ctx, c.position); err != nil {
		c.logger.Error("Cancel during abort failed", zap.Error(err), zap.Bool("fatal", true))
	}
	if err := c.persist(ctx); err != nil {
		c.logger.Error("Persist during abort failed", zap.Error(err), zap.Bool("fatal", true))
	}
	c.publish()
	return fmt.Errorf("%w: %v", domain.ErrAborted, cause)
}

func (c *Controller) persist(ctx context.Context) error {
	c.position.UpdatedAt = c.timeNow()
	if err := c.store.SaveState(ctx, c.position); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (c *Controller) publish() {
	snap := c.position.Clone()
	c.snapshot.Store(snap)
	metrics.ObservePosition(snap)

	c.obsMu.Lock()
	observers := append([]func(*domain.Position){}, c.observers...)
	c.obsMu.Unlock()
	for _, fn := range observers {
		fn(snap.Clone())
	}
}

func (c *Controller) logStatus(p *domain.Position) {
	if ce := c.logger.Check(zap.DebugLevel, "Tick"); ce != nil {
		t := c.strategy.Thresholds(p)
		buyAt := t.BuyTarget
		if !buyAt.LessThan(p.CostBasis) {
			buyAt = decimal.Zero
		}
		fields := []zap.Field{
			zap.Stringer("price", t.Price),
			zap.Stringer("value", p.BalanceBase.Mul(t.Price).Add(p.BalanceQuote).RoundFloor(2)),
			zap.Stringer("sell_target", t.SellTarget),
			zap.Stringer("sell_stop", t.SellStop),
			zap.Stringer("buy_target", buyAt),
			zap.Stringer("buy_stop", t.BuyStop),
		}
		if p.Hold {
			fields = append(fields, zap.Stringer("hold_until", t.HoldUntil))
		}
		ce.Write(fields...)
	}
}
