package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/usecase"
	"go.uber.org/zap"
)

// PositionSource exposes the latest published position.
type PositionSource interface {
	Snapshot() *domain.Position
}

// Server is the read-only status API of the bot.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	positions PositionSource
	strategy  *usecase.TradingStrategy
	tradeRepo domain.TradeRepository
	hub       *Hub
	logger    *zap.Logger
}

// NewServer builds the status server. tradeRepo may be nil when no trade
// journal is kept.
func NewServer(
	port int,
	positions PositionSource,
	strategy *usecase.TradingStrategy,
	tradeRepo domain.TradeRepository,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		positions: positions,
		strategy:  strategy,
		tradeRepo: tradeRepo,
		hub:       hub,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	// Position
	s.router.HandleFunc("GET /api/position", s.handlePosition)

	// Trades
	s.router.HandleFunc("GET /api/trades", s.handleTrades)

	// Metrics
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Live position stream
	if s.hub != nil {
		s.router.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}
