package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"errortracker/src/auth"
	"errortracker/src/model"
	"errortracker/src/repository"
)

const maxPageSize = 200

type errorAggregateReader interface {
	Search(ctx context.Context, options repository.ErrorAggregateSearchOptions) ([]model.ErrorAggregate, error)
	FindByID(ctx context.Context, id uint) (*model.ErrorAggregate, error)
}

// SearchErrorsHandler lists error aggregates, most recently seen first.
// Supports pagination and filters (host, path, method, exception, since).
func SearchErrorsHandler(repo errorAggregateReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		query := r.URL.Query()
		options := repository.ErrorAggregateSearchOptions{
			Host:          query.Get("host"),
			Path:          query.Get("path"),
			Method:        query.Get("method"),
			ExceptionName: query.Get("exception"),
		}

		if sinceParam := query.Get("since"); sinceParam != "" {
			parsed, err := time.Parse(time.RFC3339, sinceParam)
			if err != nil {
				http.Error(w, "invalid since", http.StatusBadRequest)
				return
			}
			options.Since = &parsed
		}

		page := 1
		if pageParam := query.Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := query.Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 || parsedSize > maxPageSize {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		options.Limit = pageSize
		options.Offset = (page - 1) * pageSize

		aggregates, err := repo.Search(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("failed to search error aggregates")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, aggregates)
	}
}

// GetErrorHandler returns one aggregate by id.
func GetErrorHandler(repo errorAggregateReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id == 0 {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}

		aggregate, err := repo.FindByID(r.Context(), uint(id))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.WithError(err).WithField("id", id).Error("failed to load error aggregate")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, aggregate)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// DefaultSearchErrorsHandler wires the handler to the read-only repository.
func DefaultSearchErrorsHandler() http.HandlerFunc {
	return SearchErrorsHandler(repository.NewReadOnlyErrorAggregateRepository())
}

// DefaultGetErrorHandler wires the handler to the read-only repository.
func DefaultGetErrorHandler() http.HandlerFunc {
	return GetErrorHandler(repository.NewReadOnlyErrorAggregateRepository())
}
