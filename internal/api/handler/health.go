package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/vpetrenko/failtriage/internal/api/response"
	"github.com/vpetrenko/failtriage/internal/cache"
)

const healthTimeout = 2 * time.Second

// NewHealthHandler returns an http.HandlerFunc for GET /healthz. The cache
// may be nil; then only liveness is reported.
func NewHealthHandler(c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}

		if c != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := c.Ping(ctx); err != nil {
				status["redis"] = "unreachable"
			} else {
				status["redis"] = "ok"
			}
		}

		response.JSON(w, status)
	}
}
