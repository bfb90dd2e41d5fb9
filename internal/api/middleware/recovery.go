package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/vpetrenko/failtriage/internal/api/response"
)

// Recovery turns a handler panic into a 500 with a logged stack trace.
// http.ErrAbortHandler passes through untouched; net/http uses it to abort a
// response on purpose.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			slog.Error("handler panicked",
				"request_id", GetRequestID(r),
				"panic", p,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
