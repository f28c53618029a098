package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"papertrader/src/model"
	"papertrader/src/portfolio"
	"papertrader/src/repository"

	logger "github.com/sirupsen/logrus"
)

type positionSearcher interface {
	Search(ctx context.Context, options repository.PositionSearchOptions) ([]portfolio.Position, error)
}

// SearchPositionsHandler lists stored positions of every session, newest first.
// Supports pagination and filters (symbol, status).
func SearchPositionsHandler(repo positionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := repository.PositionSearchOptions{
			Symbol: strings.ToUpper(r.URL.Query().Get("symbol")),
		}

		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			status := model.PositionStatus(statusParam)
			if status != model.PositionStatusOpen && status != model.PositionStatusClosed {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			opts.Status = status
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		opts.Limit = pageSize
		opts.Offset = (page - 1) * pageSize

		positions, err := repo.Search(r.Context(), opts)
		if err != nil {
			logger.WithError(err).Error("failed to search positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, positions)
	}
}

// DefaultSearchPositionsHandler wires the handler to the production repository implementation.
func DefaultSearchPositionsHandler() http.HandlerFunc {
	return SearchPositionsHandler(repository.NewPositionRepository())
}
