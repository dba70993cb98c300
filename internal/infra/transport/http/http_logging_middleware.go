package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

// statusRecorder wraps http.ResponseWriter to capture the response status and size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.ResponseWriter.WriteHeader(code)
	w.status = code
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n

	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}

	return n, nil
}

// LoggingMiddleware logs every request once it is answered. The level follows
// the status: 5xx at ERROR, 4xx at WARN, everything else at DEBUG, so that
// link callbacks and metric scrapes stay quiet by default. Query strings are
// never logged because callback URLs carry session tokens.
func LoggingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := logging.LevelDebug

		switch {
		case rec.status >= http.StatusInternalServerError:
			level = logging.LevelError
		case rec.status >= http.StatusBadRequest:
			level = logging.LevelWarn
		}

		log.Log(r.Context(), level, "response", logging.Group("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes_sent", rec.bytes,
			"elapsed", time.Since(start),
		))
	})
}
