package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/vitos/coinbot/internal/config"
	"github.com/vitos/coinbot/internal/infrastructure/exchange"
	"github.com/vitos/coinbot/internal/infrastructure/storage"
	"github.com/vitos/coinbot/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	yes := flag.Bool("y", false, "place orders without confirmation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ex, err := exchange.New(cfg)
	if err != nil {
		fmt.Printf("Failed to init exchange: %v\n", err)
		os.Exit(1)
	}
	b, ok := ex.(broker)
	if !ok {
		fmt.Printf("Exchange %q cannot list orders\n", cfg.Exchange.Name)
		os.Exit(1)
	}

	stores, err := storage.Open(cfg.State.Backend, cfg.State.Path, cfg.Exchange.ProductID)
	if err != nil {
		fmt.Printf("Failed to open state: %v\n", err)
		os.Exit(1)
	}
	defer stores.Close()

	params := usecase.DefaultStrategyParams()
	params.BasePlaces = cfg.BasePlaces()
	params.QuotePlaces = cfg.QuotePlaces()
	params.PricePlaces = cfg.QuotePlaces()

	base, quote := currencies(cfg)
	c := &cli{
		ex:       b,
		state:    stores.State,
		strategy: usecase.NewTradingStrategy(params),
		base:     base,
		quote:    quote,
		in:       os.Stdin,
		out:      os.Stdout,
		yes:      *yes,
		poll:     time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = c.run(ctx, flag.Args())
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stores.Close()
		os.Exit(1)
	}
}

func currencies(cfg *config.Config) (string, string) {
	if cfg.Exchange.BaseCurrency != "" && cfg.Exchange.QuoteCurrency != "" {
		return cfg.Exchange.BaseCurrency, cfg.Exchange.QuoteCurrency
	}
	base, quote, _ := strings.Cut(cfg.Exchange.ProductID, "-")
	return base, quote
}
