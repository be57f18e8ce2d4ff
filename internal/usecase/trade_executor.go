package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/metrics"
	"go.uber.org/zap"
)

// TradeExecutor carries strategy actions out on the exchange and records
// the resulting order refs on the position.
type TradeExecutor struct {
	exchange domain.Exchange
	notifier domain.Notifier
	logger   *zap.Logger
}

func NewTradeExecutor(exchange domain.Exchange, notifier domain.Notifier, logger *zap.Logger) *TradeExecutor {
	return &TradeExecutor{
		exchange: exchange,
		notifier: notifier,
		logger:   logger,
	}
}

// Execute applies a single action. On error the position is left as it was.
func (e *TradeExecutor) Execute(ctx context.Context, p *domain.Position, a Action) error {
	switch a.Kind {
	case ActionNone:
		return nil
	case ActionPlace:
		return e.place(ctx, p, a)
	case ActionCancel:
		return e.cancel(ctx, p, a.Side)
	}
	return fmt.Errorf("invalid action kind: %d", a.Kind)
}

func (e *TradeExecutor) place(ctx context.Context, p *domain.Position, a Action) error {
	if !a.Side.Valid() {
		return fmt.Errorf("invalid side: %s", a.Side)
	}
	if !a.Price.IsPositive() || !a.Amount.IsPositive() {
		return fmt.Errorf("invalid %s order: amount=%s price=%s", a.Side, a.Amount, a.Price)
	}
	// one order per side
	if open := p.OpenOrder(a.Side); open != nil {
		return fmt.Errorf("%s order %s already open", a.Side, open.ID)
	}

	var msg string
	if a.Side == domain.SideBuy {
		msg = fmt.Sprintf("Placing buy order for %s at %s/coin (total %s)",
			a.Amount.Div(a.Price).StringFixed(8), a.Price.StringFixed(2), a.Amount.StringFixed(2))
	} else {
		msg = fmt.Sprintf("Placing sell order for %s at %s/coin (total %s)",
			a.Amount.StringFixed(8), a.Price.StringFixed(2), a.Amount.Mul(a.Price).StringFixed(2))
	}
	e.logger.Info("Placing order",
		zap.String("side", string(a.Side)),
		zap.Stringer("amount", a.Amount),
		zap.Stringer("price", a.Price))

	ref, err := e.exchange.PlaceOrder(ctx, a.Side, a.Amount, a.Price)
	if err != nil {
		metrics.IncOrder(a.Side, "failed")
		return fmt.Errorf("place %s order: %w", a.Side, err)
	}
	if ref.Side == "" {
		ref.Side = a.Side
	}
	p.SetOpenOrder(a.Side, ref)

	metrics.IncOrder(a.Side, "placed")
	e.logger.Info("Order placed",
		zap.String("order_id", ref.ID),
		zap.String("side", string(a.Side)),
		zap.Stringer("amount", a.Amount),
		zap.Stringer("price", a.Price))
	e.notifier.Notify(ctx, msg)
	return nil
}

func (e *TradeExecutor) cancel(ctx context.Context, p *domain.Position, side domain.Side) error {
	ref := p.OpenOrder(side)
	if ref == nil {
		return nil
	}

	err := e.exchange.CancelOrder(ctx, ref.ID)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		metrics.IncOrder(side, "cancel_failed")
		return fmt.Errorf("cancel %s order %s: %w", side, ref.ID, err)
	}
	p.ClearOpenOrder(side)

	metrics.IncOrder(side, "cancelled")
	e.logger.Info("Order cancelled",
		zap.String("order_id", ref.ID),
		zap.String("side", string(side)),
		zap.Stringer("amount", ref.RequestedAmount),
		zap.Stringer("price", ref.RequestedPrice),
		zap.Bool("already_gone", err != nil))
	e.notifier.Notify(ctx, fmt.Sprintf("Cancelling %s order %s for %s at %s",
		side, ref.ID, ref.RequestedAmount.String(), ref.RequestedPrice.StringFixed(2)))
	return nil
}

// CancelAll cancels every open order of p, clearing the refs that are gone.
// Failures are collected so one stuck order does not keep the others open.
func (e *TradeExecutor) CancelAll(ctx context.Context, p *domain.Position) error {
	var errs []error
	for _, side := range []domain.Side{domain.SideSell, domain.SideBuy} {
		if err := e.cancel(ctx, p, side); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
