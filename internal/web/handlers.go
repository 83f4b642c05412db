package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/gain"
)

type portfolioResponse struct {
	Holdings []gain.HoldingValuation `json:"holdings"`
	Summary  gain.Summary            `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	window := domain.WindowTotal
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := domain.ParseWindow(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		window = parsed
	}

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		refresh = parsed
	}

	payload, err := s.deps.Leaderboard.LeaderboardJSON(r.Context(), window, refresh)
	if err != nil {
		s.l.Error("leaderboard failed", zap.String("window", window.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleLeaderboardInvalidate drops cached rankings, e.g. after holdings change.
func (s *Server) handleLeaderboardInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Leaderboard.Invalidate(r.Context()); err != nil {
		s.l.Error("leaderboard invalidation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "invalidation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	v, err := s.deps.Portfolios.PortfolioValuation(r.Context(), userID)
	if err != nil {
		s.l.Error("portfolio valuation failed", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "portfolio unavailable")
		return
	}

	writeJSON(w, http.StatusOK, portfolioResponse{Holdings: v.Holdings, Summary: v.Summary})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	snaps, err := s.deps.Portfolios.Snapshots(r.Context(), userID)
	if err != nil {
		s.l.Error("snapshot read failed", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshots unavailable")
		return
	}
	if snaps == nil {
		snaps = []domain.PortfolioSnapshot{}
	}

	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	point, err := s.deps.Prices.PriceHistory(r.Context(), symbol, date)
	if err != nil {
		if domain.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "price not found")
			return
		}
		s.l.Error("price history failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "price unavailable")
		return
	}

	writeJSON(w, http.StatusOK, point)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(err, "encode response").Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	payload, _ := json.Marshal(errorResponse{Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
