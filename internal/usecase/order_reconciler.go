package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/metrics"
	"go.uber.org/zap"
)

// DefaultFeeFactor inflates the cost basis of a buy by the assumed taker fee.
var DefaultFeeFactor = decimal.RequireFromString("1.0025")

// OrderReconciler folds exchange-reported order status into the position.
type OrderReconciler struct {
	exchange  domain.Exchange
	trades    domain.TradeRepository
	notifier  domain.Notifier
	logger    *zap.Logger
	feeFactor   decimal.Decimal
	pricePlaces int32
	timeNow     func() time.Time
}

// NewOrderReconciler builds a reconciler. trades may be nil when no journal is kept.
func NewOrderReconciler(exchange domain.Exchange, trades domain.TradeRepository, notifier domain.Notifier, logger *zap.Logger) *OrderReconciler {
	return &OrderReconciler{
		exchange:    exchange,
		trades:      trades,
		notifier:    notifier,
		logger:      logger,
		feeFactor:   DefaultFeeFactor,
		pricePlaces: 2,
		timeNow:     time.Now,
	}
}

// SetPricePlaces sets the precision the fill price is floored to before it
// enters the cost basis and profit.
func (r *OrderReconciler) SetPricePlaces(places int32) {
	r.pricePlaces = places
}

// Reconcile queries the status of ref and applies it to p at the given price.
// It reports whether the order is still working. A transient gateway error
// leaves p untouched and reports the order as still open. An order in an
// unexpected terminal status yields domain.ErrFatalOrderFault.
func (r *OrderReconciler) Reconcile(ctx context.Context, p *domain.Position, ref *domain.OrderRef, price decimal.Decimal) (bool, error) {
	report, err := r.exchange.GetOrderStatus(ctx, ref.ID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		r.logger.Info("Order no longer on exchange, clearing",
			zap.String("order_id", ref.ID),
			zap.String("side", string(ref.Side)))
		p.ClearOpenOrder(ref.Side)
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("order status %s: %w", ref.ID, err)
	}

	switch {
	case report.Status.IsFilled():
		r.applyFill(ctx, p, ref, report, price)
		return false, nil

	case report.Status == domain.OrderStatusRejected:
		r.logger.Warn("Order rejected, continuing",
			zap.String("order_id", ref.ID),
			zap.String("side", string(ref.Side)),
			zap.Stringer("amount", ref.RequestedAmount),
			zap.Stringer("price", ref.RequestedPrice),
			zap.String("reason", report.DoneReason))
		metrics.IncRejection(ref.Side)
		r.notifier.Notify(ctx, fmt.Sprintf("Order %s rejected, continuing...", ref.ID))
		p.ClearOpenOrder(ref.Side)
		return false, nil

	case report.Status.IsWorking():
		return true, nil

	default:
		return false, fmt.Errorf("%w: order %s (%s) in status %q",
			domain.ErrFatalOrderFault, ref.ID, ref.Side, report.Status)
	}
}

// applyFill folds a completed order into p. Cost basis and profit use the
// price floored to quote precision; the extrema take the raw price.
func (r *OrderReconciler) applyFill(ctx context.Context, p *domain.Position, ref *domain.OrderRef, report *domain.OrderStatusReport, price decimal.Decimal) {
	fillPrice := price.RoundFloor(r.pricePlaces)
	trade := &domain.Trade{
		OrderID:       ref.ID,
		ProductID:     p.ProductID,
		Side:          ref.Side,
		FilledSize:    report.FilledSize,
		Price:         fillPrice,
		ExecutedValue: report.ExecutedValue,
		CreatedAt:     r.timeNow(),
	}

	var msg string
	if ref.Side == domain.SideSell {
		trade.Profit = fillPrice.Sub(p.CostBasis).Mul(report.FilledSize)
		p.LastSellValue = report.ExecutedValue
		p.MinSinceSell = price
		msg = fmt.Sprintf("Sold %s at price %s. Profit: %s",
			report.FilledSize.StringFixed(8), fillPrice.StringFixed(2), trade.Profit.StringFixed(2))
		r.logger.Info("Sell order filled",
			zap.String("order_id", ref.ID),
			zap.String("side", string(ref.Side)),
			zap.Stringer("amount", report.FilledSize),
			zap.Stringer("price", fillPrice),
			zap.Stringer("executed_value", report.ExecutedValue),
			zap.Stringer("profit", trade.Profit))
	} else {
		p.LastSellValue = decimal.Zero
		p.CostBasis = fillPrice.Mul(r.feeFactor)
		p.MaxSinceBuy = price
		msg = fmt.Sprintf("Bought %s at price %s", report.FilledSize.StringFixed(8), fillPrice.StringFixed(2))
		r.logger.Info("Buy order filled",
			zap.String("order_id", ref.ID),
			zap.String("side", string(ref.Side)),
			zap.Stringer("amount", report.FilledSize),
			zap.Stringer("price", fillPrice),
			zap.Stringer("cost_basis", p.CostBasis))
	}
	p.ClearOpenOrder(ref.Side)
	metrics.IncFill(ref.Side)
	r.notifier.Notify(ctx, msg)

	if r.trades != nil {
		if err := r.trades.SaveTrade(ctx, trade); err != nil {
			r.logger.Error("Failed to journal trade", zap.Error(err), zap.String("order_id", ref.ID))
		}
	}
}
