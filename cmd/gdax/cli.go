package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/usecase"
)

// broker is the exchange surface the CLI needs on top of domain.Exchange.
type broker interface {
	domain.Exchange
	ListOpenOrders(ctx context.Context) ([]*domain.OrderStatusReport, error)
}

var errUsage = errors.New("invalid arguments")

type cli struct {
	ex       broker
	state    domain.StateStore
	strategy *usecase.TradingStrategy
	base     string
	quote    string
	in       io.Reader
	out      io.Writer
	yes      bool
	poll     time.Duration
}

func (c *cli) usage() {
	fmt.Fprintln(c.out, "Usage: gdax [-config path] [-y] <command> [arguments]")
	fmt.Fprintln(c.out, "    ticker                       Get current market ticker")
	fmt.Fprintln(c.out, "    balance                      Get current account balances")
	fmt.Fprintln(c.out, "    orders                       List open orders")
	fmt.Fprintln(c.out, "    order <id|index>             Get details of an order")
	fmt.Fprintln(c.out, "    watch <id|index>             Watch an order until it completes")
	fmt.Fprintln(c.out, "    buy <funds> [price]          Market buy spending funds of quote currency")
	fmt.Fprintln(c.out, "    sell <size> [price]          Market sell size of base currency")
	fmt.Fprintln(c.out, "    cancel <id|index>            Cancel an open order")
	fmt.Fprintln(c.out, "    status                       Show the bot's persisted position")
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.usage()
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "ticker":
		return c.ticker(ctx)
	case "balance":
		return c.balance(ctx)
	case "orders":
		return c.orders(ctx)
	case "order", "watch", "cancel":
		if len(rest) != 1 {
			c.usage()
			return errUsage
		}
		id, err := c.resolveID(ctx, rest[0])
		if err != nil {
			return err
		}
		switch cmd {
		case "order":
			_, err = c.order(ctx, id)
		case "watch":
			err = c.watch(ctx, id)
		default:
			err = c.cancel(ctx, id)
		}
		return err
	case "buy", "sell":
		if len(rest) < 1 || len(rest) > 2 {
			c.usage()
			return errUsage
		}
		return c.place(ctx, domain.Side(cmd), rest)
	case "status":
		return c.status(ctx)
	default:
		c.usage()
		return errUsage
	}
}

// resolveID treats a one or two character argument as an index into the
// open-order list.
func (c *cli) resolveID(ctx context.Context, arg string) (string, error) {
	if len(arg) > 2 {
		return arg, nil
	}
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	orders, err := c.ex.ListOpenOrders(ctx)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(orders) {
		return "", errors.Errorf("no open order at index %d (%d open)", idx, len(orders))
	}
	return orders[idx].ID, nil
}

func (c *cli) ticker(ctx context.Context) error {
	t, err := c.ex.GetTicker(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Market price: %s\n", t.Price.StringFixed(2))
	fmt.Fprintf(c.out, "Bid: %s  Ask: %s  Spread: %s\n",
		t.Bid.StringFixed(2), t.Ask.StringFixed(2), t.Ask.Sub(t.Bid).StringFixed(2))
	return nil
}

func (c *cli) balance(ctx context.Context) error {
	b, err := c.ex.GetAccountBalances(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %s\n", c.base, b.Base.StringFixed(8))
	fmt.Fprintf(c.out, "%s: %s\n", c.quote, b.Quote.StringFixed(8))
	return nil
}

func (c *cli) orders(ctx context.Context) error {
	orders, err := c.ex.ListOpenOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "No open orders")
		return nil
	}
	for i, o := range orders {
		fmt.Fprintf(c.out, "%d: %s (%s): %s %s %s%s at $%s\n",
			i, o.ID, o.Status, o.Type, o.Side, o.Size.StringFixed(8), c.base, o.Price.StringFixed(2))
	}
	return nil
}

// order prints the state of an order. A missing order prints a notice and
// returns a nil report.
func (c *cli) order(ctx context.Context, id string) (*domain.OrderStatusReport, error) {
	o, err := c.ex.GetOrderStatus(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		fmt.Fprintln(c.out, "Order not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status.IsFilled():
		verb := "Bought"
		if o.Side == domain.SideSell {
			verb = "Sold"
		}
		fmt.Fprintf(c.out, "%s %s %s for $%s\n", verb, o.FilledSize.StringFixed(8), c.base, o.ExecutedValue.StringFixed(2))
	case o.Status == domain.OrderStatusRejected:
		fmt.Fprintln(c.out, "Order was rejected")
	case o.Status.IsWorking():
		fmt.Fprintf(c.out, "%s %s %s%s at $%s (%s)\n",
			o.Type, o.Side, o.Size.StringFixed(8), c.base, o.Price.StringFixed(2), o.Status)
	default:
		fmt.Fprintf(c.out, "Error processing order (status: %s)\n", o.Status)
	}
	return o, nil
}

func (c *cli) watch(ctx context.Context, id string) error {
	for {
		o, err := c.order(ctx, id)
		if err != nil || o == nil || !o.Status.IsWorking() {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.poll):
		}
	}
}

func (c *cli) cancel(ctx context.Context, id string) error {
	o, err := c.ex.GetOrderStatus(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		fmt.Fprintln(c.out, "Order does not exist")
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.ex.CancelOrder(ctx, id); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			fmt.Fprintln(c.out, "Order is no longer open")
			return nil
		}
		return errors.Wrap(err, "failed to cancel order")
	}
	fmt.Fprintf(c.out, "Cancelled %s %s order for %s%s at $%s/coin\n",
		o.Type, o.Side, o.Size.StringFixed(8), c.base, o.Price.StringFixed(2))
	return nil
}

// place submits a market order. Buys take an amount of quote funds, sells an
// amount of base. The price defaults to the last ticker price.
func (c *cli) place(ctx context.Context, side domain.Side, args []string) error {
	amount, err := decimal.NewFromString(args[0])
	if err != nil || !amount.IsPositive() {
		return errors.Errorf("invalid amount %q", args[0])
	}
	var price decimal.Decimal
	if len(args) == 2 {
		price, err = decimal.NewFromString(args[1])
		if err != nil || !price.IsPositive() {
			return errors.Errorf("invalid price %q", args[1])
		}
	} else {
		t, err := c.ex.GetTicker(ctx)
		if err != nil {
			return err
		}
		price = t.Price
	}

	unit := c.base
	if side == domain.SideBuy {
		unit = c.quote
	}
	if !c.yes {
		fmt.Fprintf(c.out, "Place market %s order for %s %s at ~$%s/coin (y/N)? ", side, amount.String(), unit, price.StringFixed(2))
		answer, _ := bufio.NewReader(c.in).ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(c.out, "Aborted")
			return nil
		}
	}

	ref, err := c.ex.PlaceOrder(ctx, side, amount, price)
	if err != nil {
		return errors.Wrap(err, "failed to place order")
	}
	fmt.Fprintf(c.out, "Order placed successfully (ID %s)\n", ref.ID)
	return nil
}

func (c *cli) status(ctx context.Context) error {
	p, err := c.state.LoadState(ctx)
	if errors.Is(err, domain.ErrStateNotFound) {
		fmt.Fprintln(c.out, "No saved position")
		return nil
	}
	if err != nil {
		return err
	}
	t := c.strategy.Thresholds(p)

	fmt.Fprintf(c.out, "Product:        %s\n", p.ProductID)
	fmt.Fprintf(c.out, "Price:          %s\n", p.CurrentPrice.StringFixed(2))
	fmt.Fprintf(c.out, "Balances:       %s %s, %s %s\n", p.BalanceBase.StringFixed(8), c.base, p.BalanceQuote.StringFixed(2), c.quote)
	fmt.Fprintf(c.out, "Cost basis:     %s\n", p.CostBasis.StringFixed(2))
	fmt.Fprintf(c.out, "Last sell:      %s\n", p.LastSellValue.StringFixed(2))
	fmt.Fprintf(c.out, "Max since buy:  %s\n", p.MaxSinceBuy.StringFixed(2))
	fmt.Fprintf(c.out, "Min since sell: %s\n", p.MinSinceSell.StringFixed(2))
	if p.Hold {
		fmt.Fprintf(c.out, "Holding until:  %s\n", t.HoldUntil.StringFixed(2))
	}
	fmt.Fprintf(c.out, "Sell at:        %s | %s\n", t.SellTarget.StringFixed(2), t.SellStop.StringFixed(2))
	fmt.Fprintf(c.out, "Buy at:         %s | %s\n", t.BuyTarget.StringFixed(2), t.BuyStop.StringFixed(2))
	fmt.Fprintf(c.out, "Trading:        buy=%t sell=%t\n", p.BuyEnabled, p.SellEnabled)
	for _, ref := range []*domain.OrderRef{p.OpenSellOrder, p.OpenBuyOrder} {
		if ref != nil {
			fmt.Fprintf(c.out, "Open %s order:  %s (%s at %s)\n", ref.Side, ref.ID, ref.RequestedAmount.String(), ref.RequestedPrice.StringFixed(2))
		}
	}
	return nil
}
