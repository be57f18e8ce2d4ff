package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
)

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPlace
	ActionCancel
)

func (k ActionKind) String() string {
	switch k {
	case ActionPlace:
		return "place"
	case ActionCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Action is the decision for one side of the book.
type Action struct {
	Kind   ActionKind
	Side   domain.Side
	Amount decimal.Decimal // base size for sells, quote funds for buys
	Price  decimal.Decimal
}

func (a Action) IsNone() bool {
	return a.Kind == ActionNone
}

// Decision holds the independent sell-side and buy-side actions of one tick.
type Decision struct {
	Sell Action
	Buy  Action
}

// Actions returns the non-empty actions, sell side first.
func (d Decision) Actions() []Action {
	var out []Action
	if !d.Sell.IsNone() {
		out = append(out, d.Sell)
	}
	if !d.Buy.IsNone() {
		out = append(out, d.Buy)
	}
	return out
}

// StrategyParams are the ratchet multipliers and exchange precisions.
type StrategyParams struct {
	HoldGain     decimal.Decimal // hold until costBasis * HoldGain
	SellTrail    decimal.Decimal // sell below maxSinceBuy * SellTrail
	SellStopLoss decimal.Decimal // sell below costBasis * SellStopLoss
	BuyRebound   decimal.Decimal // buy above minSinceSell * BuyRebound while under basis
	BuyStopRise  decimal.Decimal // buy above lastSellValue * BuyStopRise
	PricePlaces  int32
	BasePlaces   int32
	QuotePlaces  int32
}

func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		HoldGain:     decimal.RequireFromString("1.05"),
		SellTrail:    decimal.RequireFromString("0.98"),
		SellStopLoss: decimal.RequireFromString("0.99"),
		BuyRebound:   decimal.RequireFromString("1.025"),
		BuyStopRise:  decimal.RequireFromString("1.01"),
		PricePlaces:  2,
		BasePlaces:   8,
		QuotePlaces:  2,
	}
}

// Thresholds are the derived trigger prices of a position, floored to price precision.
type Thresholds struct {
	Price      decimal.Decimal `json:"price"`
	HoldUntil  decimal.Decimal `json:"hold_until"`
	SellTarget decimal.Decimal `json:"sell_target"`
	SellStop   decimal.Decimal `json:"sell_stop"`
	BuyTarget  decimal.Decimal `json:"buy_target"`
	BuyStop    decimal.Decimal `json:"buy_stop"`
}

// TradingStrategy turns a position into per-side actions. It performs no I/O.
type TradingStrategy struct {
	params StrategyParams
}

func NewTradingStrategy(params StrategyParams) *TradingStrategy {
	return &TradingStrategy{params: params}
}

func (s *TradingStrategy) Params() StrategyParams {
	return s.params
}

func (s *TradingStrategy) Thresholds(p *domain.Position) Thresholds {
	places := s.params.PricePlaces
	return Thresholds{
		Price:      p.CurrentPrice.RoundFloor(places),
		HoldUntil:  p.CostBasis.Mul(s.params.HoldGain).RoundFloor(places),
		SellTarget: p.MaxSinceBuy.Mul(s.params.SellTrail).RoundFloor(places),
		SellStop:   p.CostBasis.Mul(s.params.SellStopLoss).RoundFloor(places),
		BuyTarget:  p.MinSinceSell.Mul(s.params.BuyRebound).RoundFloor(places),
		BuyStop:    p.LastSellValue.Mul(s.params.BuyStopRise).RoundFloor(places),
	}
}

// Evaluate updates the price extrema and hold flag of p and returns the actions
// for this tick. An open order that still matches the conditions is left alone.
func (s *TradingStrategy) Evaluate(p *domain.Position) Decision {
	s.trackExtrema(p)

	t := s.Thresholds(p)
	if p.Hold {
		if t.Price.LessThan(t.HoldUntil) {
			return Decision{}
		}
		p.Hold = false
	}

	return Decision{
		Sell: s.sellAction(p, t),
		Buy:  s.buyAction(p, t),
	}
}

func (s *TradingStrategy) trackExtrema(p *domain.Position) {
	if p.CurrentPrice.GreaterThan(p.MaxSinceBuy) {
		p.MaxSinceBuy = p.CurrentPrice
	} else if p.CurrentPrice.LessThan(p.MinSinceSell) {
		p.MinSinceSell = p.CurrentPrice
	}
}

func (s *TradingStrategy) sellAction(p *domain.Position, t Thresholds) Action {
	size := p.BalanceBase.RoundFloor(s.params.BasePlaces)
	want := p.SellEnabled && size.IsPositive() &&
		(t.Price.LessThan(t.SellStop) || t.Price.LessThanOrEqual(t.SellTarget))
	return s.sideAction(domain.SideSell, want, p.OpenSellOrder != nil, size, t.Price)
}

func (s *TradingStrategy) buyAction(p *domain.Position, t Thresholds) Action {
	funds := p.BalanceQuote.RoundFloor(s.params.QuotePlaces)
	cheapReentry := t.BuyTarget.LessThan(p.CostBasis) && t.Price.GreaterThanOrEqual(t.BuyTarget)
	want := p.BuyEnabled && funds.IsPositive() && !p.LastSellValue.IsZero() &&
		(t.Price.GreaterThan(t.BuyStop) || cheapReentry)
	return s.sideAction(domain.SideBuy, want, p.OpenBuyOrder != nil, funds, t.Price)
}

func (s *TradingStrategy) sideAction(side domain.Side, want, open bool, amount, price decimal.Decimal) Action {
	switch {
	case want && !open:
		return Action{Kind: ActionPlace, Side: side, Amount: amount, Price: price}
	case !want && open:
		return Action{Kind: ActionCancel, Side: side}
	default:
		return Action{Side: side}
	}
}
