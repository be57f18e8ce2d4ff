package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
	"github.com/vitos/coinbot/internal/usecase"
	"go.uber.org/zap"
)

const (
	defaultTradesLimit = 50
	maxTradesLimit     = 1000
)

type positionView struct {
	Position       *domain.Position   `json:"position"`
	Thresholds     usecase.Thresholds `json:"thresholds"`
	PortfolioValue decimal.Decimal    `json:"portfolio_value"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := s.positions.Snapshot()
	if p == nil {
		s.writeError(w, http.StatusServiceUnavailable, "starting")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"product_id": p.ProductID,
		"updated_at": p.UpdatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	p := s.positions.Snapshot()
	if p == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no position yet")
		return
	}
	t := s.strategy.Thresholds(p)
	s.writeJSON(w, http.StatusOK, positionView{
		Position:       p,
		Thresholds:     t,
		PortfolioValue: p.BalanceBase.Mul(t.Price).Add(p.BalanceQuote).RoundFloor(2),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.tradeRepo == nil {
		s.writeError(w, http.StatusNotFound, "trade journal disabled")
		return
	}

	limit := defaultTradesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxTradesLimit)
	}

	trades, err := s.tradeRepo.ListTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}
