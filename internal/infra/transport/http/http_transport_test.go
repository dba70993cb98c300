package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	context_ "github.com/mkrupp/jobboard-session/internal/infra/context"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
	http_ "github.com/mkrupp/jobboard-session/internal/infra/transport/http"
)

func TestWrap_TraceIDPropagation(t *testing.T) {
	t.Parallel()

	var seen string

	handler := http_.Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = context_.TraceIDFromContext(r.Context())
	}), logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	req.Header.Set(http_.TraceIDHeader, "trace-42")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, "trace-42", seen)
	require.Equal(t, "trace-42", rec.Header().Get(http_.TraceIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))

	require.NotEmpty(t, seen)
	require.NotEqual(t, "trace-42", seen)
	require.Equal(t, seen, rec.Header().Get(http_.TraceIDHeader))
}

func TestWrap_RecoversPanic(t *testing.T) {
	t.Parallel()

	handler := http_.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), logging.NewNopLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServe_StopsOnContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := http_.HTTPTransportConfig{
		ServerAddr:      "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}

	sock, err := http_.Listen(ctx, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() {
		done <- http_.Serve(ctx, sock, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}), cfg)
	}()

	resp, err := http.Get("http://" + sock.Addr().String() + "/")
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "ok", string(body))

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
