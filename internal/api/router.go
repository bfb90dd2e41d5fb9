// Package api exposes the pipeline over HTTP for CI systems that prefer a
// webhook over running the CLI.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/vpetrenko/failtriage/internal/api/middleware"
	"github.com/vpetrenko/failtriage/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	AnalyzeHandler  http.HandlerFunc
	FeedbackHandler http.HandlerFunc
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/healthz", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/launches/{launchID}/analyze", orNotImplemented(deps.AnalyzeHandler))
		r.Post("/api/v1/kb/feedback", orNotImplemented(deps.FeedbackHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
