package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

// HTTPTransportConfig contains configuration parameters for HTTP servers.
type HTTPTransportConfig struct {
	// ServerAddr is the network address to listen on
	ServerAddr string `env:"SERVER_ADDR, default=127.0.0.1:8765"`
	// ReadHeaderTimeout bounds reading request headers
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT, default=5s"`

	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=5s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=5s"`

	// ShutdownTimeout bounds the graceful shutdown once ctx is done
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=5s"`
}

// HTTPTransport defines the interface for HTTP handlers that can serve requests.
type HTTPTransport interface {
	http.Handler
}

// Wrap applies the standard middleware chain: panic recovery, request
// logging and tracing.
func Wrap(handler HTTPTransport, log logging.Logger) http.Handler {
	handler = RescueingMiddleware(handler, log)
	handler = LoggingMiddleware(handler, log)
	handler = TracingMiddleware(handler)

	return handler
}

// Listen opens the listening socket for cfg.ServerAddr.
func Listen(ctx context.Context, cfg HTTPTransportConfig) (net.Listener, error) {
	var lc net.ListenConfig

	sock, err := lc.Listen(ctx, "tcp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return sock, nil
}

// ListenAndServe starts an HTTP server with the given handler and configuration.
// The server shuts down gracefully when ctx is done; that is not an error.
func ListenAndServe(ctx context.Context, handler HTTPTransport, cfg HTTPTransportConfig) error {
	sock, err := Listen(ctx, cfg)
	if err != nil {
		return err
	}

	return Serve(ctx, sock, handler, cfg)
}

// Serve serves handler on sock until ctx is done. The socket is closed on return.
func Serve(ctx context.Context, sock net.Listener, handler HTTPTransport, cfg HTTPTransportConfig) error {
	log := logging.GetLogger("infra.transport.http")

	//nolint:exhaustruct
	server := &http.Server{
		Handler:           Wrap(handler, log),
		ErrorLog:          logging.GetLogLogger(log, logging.LevelError),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WarnContext(ctx, "shutdown", "error", err)
		}
	}()

	log.DebugContext(ctx, "listening", "addr", sock.Addr().String())

	if err := server.Serve(sock); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	<-stopped

	return nil
}
