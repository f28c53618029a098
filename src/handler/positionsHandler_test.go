package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"papertrader/src/model"
	"papertrader/src/portfolio"
	"papertrader/src/repository"

	"github.com/stretchr/testify/require"
)

type mockPositionSearcher struct {
	opts      repository.PositionSearchOptions
	positions []portfolio.Position
	err       error
}

func (m *mockPositionSearcher) Search(ctx context.Context, options repository.PositionSearchOptions) ([]portfolio.Position, error) {
	m.opts = options
	return m.positions, m.err
}

func TestSearchPositionsHandler_Success(t *testing.T) {
	mock := &mockPositionSearcher{positions: []portfolio.Position{{ID: "p-1", Symbol: "BTCUSDT", Status: model.PositionStatusClosed}}}
	h := SearchPositionsHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/positions?page=2&pageSize=10&symbol=btcusdt&status=closed", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, mock.opts.Limit)
	require.Equal(t, 10, mock.opts.Offset)
	require.Equal(t, "BTCUSDT", mock.opts.Symbol)
	require.Equal(t, model.PositionStatusClosed, mock.opts.Status)

	var resp []portfolio.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, "p-1", resp[0].ID)
}

func TestSearchPositionsHandler_Defaults(t *testing.T) {
	mock := &mockPositionSearcher{}
	h := SearchPositionsHandler(mock)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 20, mock.opts.Limit)
	require.Equal(t, 0, mock.opts.Offset)
	require.Empty(t, mock.opts.Status)
}

func TestSearchPositionsHandler_InvalidParams(t *testing.T) {
	for _, target := range []string{
		"/positions?page=0",
		"/positions?pageSize=abc",
		"/positions?status=pending",
	} {
		rec := httptest.NewRecorder()
		SearchPositionsHandler(&mockPositionSearcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSearchPositionsHandler_Error(t *testing.T) {
	mock := &mockPositionSearcher{err: errors.New("db down")}
	rec := httptest.NewRecorder()
	SearchPositionsHandler(mock).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
