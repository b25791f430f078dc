package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
)

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError maps a typed apperr.Error to an HTTP status and writes it
// (spec §7's error kinds determine whether a caller should retry, fix
// input, or treat the failure as fatal).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if e, ok := err.(*apperr.Error); ok {
		switch e.Kind {
		case apperr.NotFound:
			status = http.StatusNotFound
		case apperr.ConfirmationRequired:
			status = http.StatusConflict
		case apperr.InvalidSymbol, apperr.InvalidOrder, apperr.InsufficientHistory:
			status = http.StatusBadRequest
		case apperr.UpstreamTransient, apperr.RateLimited, apperr.Timeout:
			status = http.StatusServiceUnavailable
		case apperr.NoActivePredictors, apperr.InsufficientSamples:
			status = http.StatusUnprocessableEntity
		}
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleGetSignal serves GET /api/signals/{symbol}.
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	signal, err := s.core.GenerateSignal(r.Context(), symbol, time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, signal)
}

// handleListModels serves GET /api/models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.core.Registry.ListAll())
}

// handleModelPerformance serves GET /api/models/{id}/performance.
func (s *Server) handleModelPerformance(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")

	window := time.Duration(s.cfg.TrackerWindowDays) * 24 * time.Hour
	metrics := s.core.Tracker.RollingMetrics(modelID, window, s.cfg.MinObservations, time.Now().UTC())
	s.writeJSON(w, http.StatusOK, metrics)
}

type orderRequest struct {
	Symbol         string           `json:"symbol"`
	Side           domain.Side      `json:"side"`
	OrderType      domain.OrderType `json:"order_type"`
	Quantity       float64          `json:"quantity"`
	LimitPrice     *float64         `json:"limit_price,omitempty"`
	StopTrigger    *float64         `json:"stop_trigger,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// handleSubmitOrder serves POST /api/orders.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	order := domain.Order{
		Symbol:      req.Symbol,
		Side:        req.Side,
		OrderType:   req.OrderType,
		Quantity:    req.Quantity,
		LimitPrice:  req.LimitPrice,
		StopTrigger: req.StopTrigger,
	}

	result, err := s.core.Router.SubmitOrder(r.Context(), order, req.IdempotencyKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

type modeRequest struct {
	Mode         domain.Mode `json:"mode"`
	Confirmation string      `json:"confirmation,omitempty"`
}

type modeResponse struct {
	Mode              domain.Mode `json:"mode"`
	ConfirmationToken string      `json:"confirmation_token,omitempty"`
}

// handleSetMode serves POST /api/mode. A paper-to-live transition without a
// confirmation token comes back as 409 with a freshly minted token; the
// caller replays the request with that token to confirm the switch.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	mode, token, err := s.core.Router.RequestModeChange(req.Mode, req.Confirmation)
	if err != nil {
		if apperr.Of(err, apperr.ConfirmationRequired) {
			s.writeJSON(w, http.StatusConflict, modeResponse{Mode: mode, ConfirmationToken: token})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, modeResponse{Mode: mode})
}

// handleListSnapshots serves GET /api/portfolio/snapshots?since=&until=
// (unix seconds), defaulting to the last 24 hours.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	until := time.Now()

	if v := r.URL.Query().Get("since"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.Unix(sec, 0)
		}
	}
	if v := r.URL.Query().Get("until"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			until = time.Unix(sec, 0)
		}
	}

	if s.core.Snapshots == nil {
		s.writeJSON(w, http.StatusOK, []domain.PortfolioSnapshot{})
		return
	}
	snapshots, err := s.core.Snapshots.List(since, until)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}
