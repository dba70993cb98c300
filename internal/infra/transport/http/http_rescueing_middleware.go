package http

import (
	"net/http"
	"runtime/debug"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

// RescueingMiddleware recovers from panics in HTTP handlers, logs the stack
// and answers 500.
func RescueingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}

			if p == http.ErrAbortHandler { //nolint:errorlint,err113
				panic(p)
			}

			log.ErrorContext(r.Context(), "request panic",
				logging.Group("http", "method", r.Method, "path", r.URL.Path),
				logging.Group("error", "panic", p, "stack", string(debug.Stack())),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
