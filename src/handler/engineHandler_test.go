package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"papertrader/src/engine"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mockEngine struct {
	running  bool
	settings model.Settings
	view     portfolio.View
	metrics  model.Metrics
	pending  []engine.PendingOrder

	closeErr  error
	closed    string
	processed *model.Signal
	result    engine.ProcessResult
	updateErr error
	resets    int
}

func newMockEngine() *mockEngine {
	return &mockEngine{settings: model.DefaultSettings()}
}

func (m *mockEngine) IsRunning() bool                      { return m.running }
func (m *mockEngine) Portfolio() portfolio.View            { return m.view }
func (m *mockEngine) Metrics() model.Metrics               { return m.metrics }
func (m *mockEngine) Settings() model.Settings             { return m.settings }
func (m *mockEngine) PendingOrders() []engine.PendingOrder { return m.pending }

func (m *mockEngine) ProcessSignal(_ context.Context, signal model.Signal) engine.ProcessResult {
	m.processed = &signal
	return m.result
}

func (m *mockEngine) ClosePosition(_ context.Context, id string) (portfolio.Position, error) {
	m.closed = id
	if m.closeErr != nil {
		return portfolio.Position{}, m.closeErr
	}
	return portfolio.Position{ID: id, Status: model.PositionStatusClosed}, nil
}

func (m *mockEngine) UpdateSettings(_ context.Context, settings model.Settings) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	m.settings = settings
	return nil
}

func (m *mockEngine) UpdateConfidenceThreshold(_ context.Context, threshold float64) error {
	if err := model.ValidateConfidenceThreshold(threshold); err != nil {
		return err
	}
	m.settings.ConfidenceThreshold = threshold
	return nil
}

func (m *mockEngine) UpdateSignalInterval(_ context.Context, minutes int) error {
	if err := model.ValidateSignalInterval(minutes); err != nil {
		return err
	}
	m.settings.SignalIntervalMinutes = minutes
	return nil
}

func (m *mockEngine) ResetPortfolio(context.Context) portfolio.View {
	m.resets++
	return portfolio.New(m.settings.InitialBalance).View()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusHandler(t *testing.T) {
	e := newMockEngine()
	e.running = true
	e.pending = make([]engine.PendingOrder, 2)

	rec := do(t, StatusHandler(e), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"running":true,"pending_orders":2}`, rec.Body.String())
}

func TestPortfolioAndMetricsHandlers(t *testing.T) {
	e := newMockEngine()
	e.view = portfolio.New(decimal.NewFromInt(10000)).View()
	e.metrics = model.Metrics{TotalTrades: 3, WinningTrades: 2}

	rec := do(t, PortfolioHandler(e), http.MethodGet, "/portfolio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "10000", view["cash_balance"])

	rec = do(t, MetricsHandler(e), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics model.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.Equal(t, 3, metrics.TotalTrades)
	require.Equal(t, 2, metrics.WinningTrades)
}

func TestSettingsHandlers(t *testing.T) {
	e := newMockEngine()

	rec := do(t, ConfidenceHandler(e), http.MethodPut, "/settings/confidence", `{"threshold":0.55}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0.55, e.settings.ConfidenceThreshold)

	rec = do(t, ConfidenceHandler(e), http.MethodPut, "/settings/confidence", `{"threshold":1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid settings")

	rec = do(t, ConfidenceHandler(e), http.MethodPut, "/settings/confidence", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, SignalIntervalHandler(e), http.MethodPut, "/settings/interval", `{"minutes":30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 30, e.settings.SignalIntervalMinutes)

	rec = do(t, SignalIntervalHandler(e), http.MethodPut, "/settings/interval", `{"minutes":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, GetSettingsHandler(e), http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 30, got.SignalIntervalMinutes)
}

func TestPutSettingsHandler(t *testing.T) {
	e := newMockEngine()

	next := model.DefaultSettings()
	next.MaxPositions = 8
	body, err := json.Marshal(next)
	require.NoError(t, err)

	rec := do(t, PutSettingsHandler(e), http.MethodPut, "/settings", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 8, e.settings.MaxPositions)

	next.MaxPositions = 0
	body, err = json.Marshal(next)
	require.NoError(t, err)
	rec = do(t, PutSettingsHandler(e), http.MethodPut, "/settings", string(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 8, e.settings.MaxPositions)

	rec = do(t, PutSettingsHandler(e), http.MethodPut, "/settings", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	e.updateErr = fmt.Errorf("db down")
	body, err = json.Marshal(model.DefaultSettings())
	require.NoError(t, err)
	rec = do(t, PutSettingsHandler(e), http.MethodPut, "/settings", string(body))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClosePositionHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"closed", nil, http.StatusOK},
		{"unknown", fmt.Errorf("%w: p-1", portfolio.ErrPositionNotFound), http.StatusNotFound},
		{"already closed", portfolio.ErrPositionAlreadyClosed, http.StatusConflict},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newMockEngine()
			e.closeErr = tt.err

			r := chi.NewRouter()
			r.Post("/positions/{id}/close", ClosePositionHandler(e))

			rec := do(t, r, http.MethodPost, "/positions/p-1/close", "")
			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, "p-1", e.closed)
		})
	}
}

func TestProcessSignalHandler(t *testing.T) {
	e := newMockEngine()
	e.result = engine.ProcessResult{Success: true}

	rec := do(t, ProcessSignalHandler(e), http.MethodPost, "/signals",
		`{"id":"s-1","symbol":" btcusdt ","direction":"long","confidence":0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, e.processed)
	require.Equal(t, "BTCUSDT", e.processed.Symbol)
	require.Equal(t, model.DirectionLong, e.processed.Direction)

	e.result = engine.ProcessResult{Reason: "symbol BTCUSDT is disabled"}
	rec = do(t, ProcessSignalHandler(e), http.MethodPost, "/signals",
		`{"symbol":"BTCUSDT","direction":"short"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "disabled")

	e.processed = nil
	rec = do(t, ProcessSignalHandler(e), http.MethodPost, "/signals", `{"symbol":"BTCUSDT","direction":"up"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, ProcessSignalHandler(e), http.MethodPost, "/signals", `{"direction":"long"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, e.processed)
}

func TestResetPortfolioHandler(t *testing.T) {
	e := newMockEngine()

	rec := do(t, ResetPortfolioHandler(e), http.MethodPost, "/portfolio/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, e.resets)

	var view portfolio.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.True(t, view.CashBalance.Equal(decimal.NewFromInt(10000)))
	require.Empty(t, view.OpenPositions)
}
