package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpetrenko/failtriage/internal/api"
	"github.com/vpetrenko/failtriage/internal/api/handler"
	mw "github.com/vpetrenko/failtriage/internal/api/middleware"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server exposing the analyze pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.close()

		deps := api.Dependencies{
			Auth:      mw.NewAuth(d.cfg.Server.AuthKeyHash),
			RateLimit: mw.NewRateLimit(d.cache, 60),

			HealthHandler:   handler.NewHealthHandler(d.cache),
			AnalyzeHandler:  handler.NewAnalyzeHandler(d.runner),
			FeedbackHandler: handler.NewFeedbackHandler(d.feedback),
		}

		addr := fmt.Sprintf(":%d", d.cfg.Server.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      api.NewRouter(deps),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // analyze runs can be slow
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}
