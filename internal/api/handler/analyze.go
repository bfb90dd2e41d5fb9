package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vpetrenko/failtriage/internal/api/response"
	"github.com/vpetrenko/failtriage/internal/testops"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// LaunchRunner defines the interface the handler depends on.
type LaunchRunner interface {
	Run(ctx context.Context, launchID int64) (*models.RunReport, error)
}

// NewAnalyzeHandler returns an http.HandlerFunc for
// POST /api/v1/launches/{launchID}/analyze.
func NewAnalyzeHandler(runner LaunchRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		launchID, err := strconv.ParseInt(chi.URLParam(r, "launchID"), 10, 64)
		if err != nil || launchID <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"launchID must be a positive integer", nil)
			return
		}

		report, err := runner.Run(r.Context(), launchID)
		if err != nil {
			status, code := classifyRunError(err)
			response.Error(w, status, code, err.Error(), nil)
			return
		}

		response.JSON(w, report)
	}
}

// classifyRunError maps pipeline errors onto HTTP statuses. Upstream
// failures are gateway problems, not client ones.
func classifyRunError(err error) (int, string) {
	var apiErr *testops.APIError
	switch {
	case errors.Is(err, testops.ErrAuthentication):
		return http.StatusBadGateway, "UPSTREAM_AUTH_FAILED"
	case errors.Is(err, testops.ErrPaginationLimit):
		return http.StatusBadGateway, "UPSTREAM_TOO_LARGE"
	case errors.Is(err, testops.ErrTimeout), errors.Is(err, testops.ErrUnreachable):
		return http.StatusGatewayTimeout, "UPSTREAM_UNAVAILABLE"
	case errors.As(err, &apiErr):
		if apiErr.Status == http.StatusNotFound {
			return http.StatusNotFound, "LAUNCH_NOT_FOUND"
		}
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
