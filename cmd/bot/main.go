package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/coinbot/internal/config"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/infrastructure/exchange"
	"github.com/vitos/coinbot/internal/infrastructure/logger"
	"github.com/vitos/coinbot/internal/infrastructure/notify"
	"github.com/vitos/coinbot/internal/infrastructure/storage"
	"github.com/vitos/coinbot/internal/usecase"
	"github.com/vitos/coinbot/internal/web"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
		return 1
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	// 3. Init Storage
	stores, err := storage.Open(cfg.State.Backend, cfg.State.Path, cfg.Exchange.ProductID)
	if err != nil {
		log.Error("Failed to open state store", zap.Error(err))
		return 1
	}
	defer stores.Close()

	// 4. Init Exchange
	ex, err := exchange.New(cfg)
	if err != nil {
		log.Error("Failed to init exchange", zap.Error(err))
		return 1
	}

	// 5. Init Notifier
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	notifier := notify.NewNotifier("coinbot "+cfg.Exchange.ProductID, senders, log)
	defer notifier.Wait()

	// 6. Init Controller
	params := usecase.DefaultStrategyParams()
	params.BasePlaces = cfg.BasePlaces()
	params.QuotePlaces = cfg.QuotePlaces()
	params.PricePlaces = cfg.QuotePlaces()
	strategy := usecase.NewTradingStrategy(params)

	reconciler := usecase.NewOrderReconciler(ex, stores.Trades, notifier, log)
	reconciler.SetPricePlaces(params.PricePlaces)

	controller := usecase.NewController(
		usecase.ControllerConfig{
			ProductID:   cfg.Exchange.ProductID,
			Interval:    cfg.Interval(),
			BuyEnabled:  cfg.Trading.BuyEnabled,
			SellEnabled: cfg.Trading.SellEnabled,
		},
		ex,
		stores.State,
		strategy,
		reconciler,
		usecase.NewTradeExecutor(ex, notifier, log),
		notifier,
		log,
	)

	// 7. Init Web Server
	var server *web.Server
	if cfg.Server.Enabled {
		hub := web.NewHub(log)
		controller.Subscribe(hub.Publish)
		server = web.NewServer(cfg.Server.Port, controller, strategy, stores.Trades, hub, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("Web server failed", zap.Error(err))
			}
		}()
	}

	log.Info("Starting coinbot",
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("product", cfg.Exchange.ProductID),
		zap.String("state_backend", cfg.State.Backend),
		zap.String("state_path", cfg.State.Path),
		zap.Duration("interval", cfg.Interval()),
	)

	// 8. Run until SIGINT/SIGTERM or abort
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := controller.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Web server shutdown failed", zap.Error(err))
		}
		cancel()
	}

	switch {
	case errors.Is(runErr, domain.ErrAborted):
		log.Error("Trading aborted", zap.Error(runErr))
		return 1
	case runErr != nil:
		log.Error("Controller stopped", zap.Error(runErr))
		return 1
	}
	log.Info("Shutdown complete")
	return 0
}
