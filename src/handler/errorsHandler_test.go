package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"errortracker/src/auth"
	"errortracker/src/model"
	"errortracker/src/repository"
)

type mockAggregateReader struct {
	aggregates  []model.ErrorAggregate
	found       *model.ErrorAggregate
	err         error
	options     repository.ErrorAggregateSearchOptions
	requestedID uint
	calledCount int
}

func (m *mockAggregateReader) Search(_ context.Context, options repository.ErrorAggregateSearchOptions) ([]model.ErrorAggregate, error) {
	m.calledCount++
	m.options = options
	return m.aggregates, m.err
}

func (m *mockAggregateReader) FindByID(_ context.Context, id uint) (*model.ErrorAggregate, error) {
	m.calledCount++
	m.requestedID = id
	return m.found, m.err
}

func asAdmin(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.AdminKey, true))
}

func TestSearchErrorsHandler_Unauthorized(t *testing.T) {
	handler := SearchErrorsHandler(&mockAggregateReader{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/errors", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSearchErrorsHandler_InvalidParams(t *testing.T) {
	for _, target := range []string{
		"/errors?since=yesterday",
		"/errors?page=0",
		"/errors?pageSize=-1",
		"/errors?pageSize=1000",
	} {
		t.Run(target, func(t *testing.T) {
			mockRepo := &mockAggregateReader{}
			rr := httptest.NewRecorder()

			SearchErrorsHandler(mockRepo).ServeHTTP(rr, asAdmin(httptest.NewRequest(http.MethodGet, target, nil)))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Zero(t, mockRepo.calledCount)
		})
	}
}

func TestSearchErrorsHandler_RepoError(t *testing.T) {
	mockRepo := &mockAggregateReader{err: assert.AnError}

	rr := httptest.NewRecorder()
	SearchErrorsHandler(mockRepo).ServeHTTP(rr, asAdmin(httptest.NewRequest(http.MethodGet, "/errors", nil)))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 1, mockRepo.calledCount)
}

func TestSearchErrorsHandler_Success(t *testing.T) {
	mockRepo := &mockAggregateReader{aggregates: []model.ErrorAggregate{{ID: 3, Hash: "h", Path: "/orders", Count: 9}}}

	req := httptest.NewRequest(http.MethodGet, "/errors?host=example.org&path=/orders&method=POST&exception=*errors.errorString&since=2026-01-01T00:00:00Z&page=3&pageSize=10", nil)
	rr := httptest.NewRecorder()
	SearchErrorsHandler(mockRepo).ServeHTTP(rr, asAdmin(req))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "example.org", mockRepo.options.Host)
	assert.Equal(t, "/orders", mockRepo.options.Path)
	assert.Equal(t, "POST", mockRepo.options.Method)
	assert.Equal(t, "*errors.errorString", mockRepo.options.ExceptionName)
	require.NotNil(t, mockRepo.options.Since)
	assert.True(t, mockRepo.options.Since.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 10, mockRepo.options.Limit)
	assert.Equal(t, 20, mockRepo.options.Offset)

	var body []model.ErrorAggregate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, int64(9), body[0].Count)
}

func TestGetErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		repo     *mockAggregateReader
		wantCode int
	}{
		{name: "found", id: "4", repo: &mockAggregateReader{found: &model.ErrorAggregate{ID: 4}}, wantCode: http.StatusOK},
		{name: "not found", id: "4", repo: &mockAggregateReader{err: gorm.ErrRecordNotFound}, wantCode: http.StatusNotFound},
		{name: "repo error", id: "4", repo: &mockAggregateReader{err: assert.AnError}, wantCode: http.StatusInternalServerError},
		{name: "invalid id", id: "abc", repo: &mockAggregateReader{}, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Get("/errors/{id}", GetErrorHandler(tt.repo))

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, asAdmin(httptest.NewRequest(http.MethodGet, "/errors/"+tt.id, nil)))

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, uint(4), tt.repo.requestedID)
			}
		})
	}
}
