package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"papertrader/src/engine"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// TradingEngine is the part of the engine exposed over HTTP.
type TradingEngine interface {
	IsRunning() bool
	Portfolio() portfolio.View
	Metrics() model.Metrics
	Settings() model.Settings
	PendingOrders() []engine.PendingOrder
	ProcessSignal(ctx context.Context, signal model.Signal) engine.ProcessResult
	ClosePosition(ctx context.Context, id string) (portfolio.Position, error)
	UpdateSettings(ctx context.Context, settings model.Settings) error
	UpdateConfidenceThreshold(ctx context.Context, threshold float64) error
	UpdateSignalInterval(ctx context.Context, minutes int) error
	ResetPortfolio(ctx context.Context) portfolio.View
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusHandler reports whether the loops are running.
func StatusHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"running":        e.IsRunning(),
			"pending_orders": len(e.PendingOrders()),
		})
	}
}

func PortfolioHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Portfolio())
	}
}

func MetricsHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Metrics())
	}
}

func GetSettingsHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Settings())
	}
}

// PutSettingsHandler replaces the whole settings document.
func PutSettingsHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings model.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := e.UpdateSettings(r.Context(), settings); err != nil {
			settingsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e.Settings())
	}
}

type confidenceRequest struct {
	Threshold *float64 `json:"threshold"`
}

func ConfidenceHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confidenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
			writeError(w, http.StatusBadRequest, "threshold is required")
			return
		}
		if err := e.UpdateConfidenceThreshold(r.Context(), *req.Threshold); err != nil {
			settingsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e.Settings())
	}
}

type intervalRequest struct {
	Minutes *int `json:"minutes"`
}

func SignalIntervalHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req intervalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Minutes == nil {
			writeError(w, http.StatusBadRequest, "minutes is required")
			return
		}
		if err := e.UpdateSignalInterval(r.Context(), *req.Minutes); err != nil {
			settingsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e.Settings())
	}
}

func settingsError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrInvalidSettings) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.WithError(err).Error("failed to update settings")
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

// ClosePositionHandler closes {id} at the latest price.
func ClosePositionHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "position id is required")
			return
		}

		closed, err := e.ClosePosition(r.Context(), id)
		switch {
		case errors.Is(err, portfolio.ErrPositionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, portfolio.ErrPositionAlreadyClosed):
			writeError(w, http.StatusConflict, err.Error())
		case err != nil:
			logger.WithError(err).WithField("position_id", id).Error("failed to close position")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		default:
			writeJSON(w, http.StatusOK, closed)
		}
	}
}

// ProcessSignalHandler feeds a signal to the engine as if the signal loop produced it.
func ProcessSignalHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signal model.Signal
		if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		signal.Symbol = strings.ToUpper(strings.TrimSpace(signal.Symbol))
		if signal.Symbol == "" {
			writeError(w, http.StatusBadRequest, "symbol is required")
			return
		}
		if _, ok := signal.Direction.Side(); !ok && signal.Direction != model.DirectionNeutral {
			writeError(w, http.StatusBadRequest, "direction must be long, short or neutral")
			return
		}

		result := e.ProcessSignal(r.Context(), signal)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
	}
}

func ResetPortfolioHandler(e TradingEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.ResetPortfolio(r.Context()))
	}
}
