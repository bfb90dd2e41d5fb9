package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vpetrenko/failtriage/internal/api"
	"github.com/vpetrenko/failtriage/internal/api/handler"
	mw "github.com/vpetrenko/failtriage/internal/api/middleware"
	"github.com/vpetrenko/failtriage/pkg/models"
)

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, launchID int64) (*models.RunReport, error) {
	return &models.RunReport{Triage: &models.TriageReport{LaunchID: launchID}}, nil
}

func newTestRouter(t *testing.T, keyHash string) http.Handler {
	t.Helper()
	return api.NewRouter(api.Dependencies{
		Auth:            mw.NewAuth(keyHash),
		RateLimit:       mw.NewRateLimit(nil, 0),
		HealthHandler:   handler.NewHealthHandler(nil),
		AnalyzeHandler:  handler.NewAnalyzeHandler(stubRunner{}),
		FeedbackHandler: handler.NewFeedbackHandler(nil),
	})
}

func TestRouter_HealthIsPublic(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("key"), bcrypt.MinCost)
	require.NoError(t, err)
	router := newTestRouter(t, string(hash))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRouter_AnalyzeRequiresAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("key"), bcrypt.MinCost)
	require.NoError(t, err)
	router := newTestRouter(t, string(hash))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/launches/7/analyze", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/launches/7/analyze", nil)
	req.Header.Set("Authorization", "Bearer key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data models.RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.Data.Triage.LaunchID)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MissingHandlerIs501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(""),
		RateLimit: mw.NewRateLimit(nil, 0),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
