package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/coinbot/internal/config"
	"github.com/vitos/coinbot/internal/infrastructure/exchange"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing %s interaction...\n", cfg.Exchange.Name)
	if cfg.Exchange.RESTEndpoint != "" {
		fmt.Printf("Endpoint: %s\n", cfg.Exchange.RESTEndpoint)
	}
	if len(cfg.Exchange.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", cfg.Exchange.APIKey[:4])
	}

	ex, err := exchange.New(cfg)
	if err != nil {
		fmt.Printf("Failed to init exchange: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false

	// 2. Check Public Endpoint (Ticker)
	tick, err := ex.GetTicker(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get ticker: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Ticker (%s): Price=%s, Bid=%s, Ask=%s\n",
			cfg.Exchange.ProductID, tick.Price, tick.Bid, tick.Ask)
	}

	// 3. Check Private Endpoint (Balances)
	bal, err := ex.GetAccountBalances(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get balances: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Balances: Base=%s, Quote=%s\n", bal.Base, bal.Quote)
	}

	if failed {
		os.Exit(1)
	}
}
