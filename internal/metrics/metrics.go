// Package metrics exposes Prometheus series for the trading loop:
//   - coinbot_orders_total{side,result}  orders placed / failed / cancelled
//   - coinbot_fills_total{side}          orders reconciled as filled
//   - coinbot_rejections_total{side}     orders rejected by the exchange
//   - coinbot_aborts_total               fatal aborts
//   - coinbot_ticks_total{result}        ticks by outcome (ok|retry|abort)
//   - coinbot_price, coinbot_cost_basis, coinbot_hold, coinbot_balance{asset}
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitos/coinbot/internal/domain"
)

var (
	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_orders_total",
			Help: "Order actions sent to the exchange",
		},
		[]string{"side", "result"},
	)

	fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_fills_total",
			Help: "Orders reconciled as filled",
		},
		[]string{"side"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_rejections_total",
			Help: "Orders rejected by the exchange",
		},
		[]string{"side"},
	)

	aborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinbot_aborts_total",
			Help: "Fatal aborts after an unexpected order status",
		},
	)

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbot_ticks_total",
			Help: "Control loop iterations by outcome",
		},
		[]string{"result"},
	)

	price = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinbot_price",
		Help: "Last observed mid price",
	})

	costBasis = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinbot_cost_basis",
		Help: "Cost basis of the position",
	})

	hold = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinbot_hold",
		Help: "1 while the position is in hold",
	})

	balance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coinbot_balance",
			Help: "Last observed balances",
		},
		[]string{"asset"}, // base|quote
	)
)

func init() {
	prometheus.MustRegister(orders, fills, rejections, aborts, ticks)
	prometheus.MustRegister(price, costBasis, hold, balance)
}

func IncOrder(side domain.Side, result string) { orders.WithLabelValues(string(side), result).Inc() }
func IncFill(side domain.Side)                 { fills.WithLabelValues(string(side)).Inc() }
func IncRejection(side domain.Side)            { rejections.WithLabelValues(string(side)).Inc() }
func IncAbort()                                { aborts.Inc() }
func IncTick(result string)                    { ticks.WithLabelValues(result).Inc() }

// ObservePosition refreshes the gauges from a position snapshot.
func ObservePosition(p *domain.Position) {
	price.Set(p.CurrentPrice.InexactFloat64())
	costBasis.Set(p.CostBasis.InexactFloat64())
	if p.Hold {
		hold.Set(1)
	} else {
		hold.Set(0)
	}
	balance.WithLabelValues("base").Set(p.BalanceBase.InexactFloat64())
	balance.WithLabelValues("quote").Set(p.BalanceQuote.InexactFloat64())
}
