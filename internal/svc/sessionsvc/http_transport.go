package sessionsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/mkrupp/jobboard-session/internal/domain"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
	http_ "github.com/mkrupp/jobboard-session/internal/infra/transport/http"
)

const (
	fromFragmentParam = "from_fragment"
	maxDeepLinkBytes  = 8 << 10
)

// forwardFragmentPage turns a fragment-carried token (which browsers never
// send) into a query parameter and reloads the callback.
const forwardFragmentPage = `<!doctype html>
<html><head><title>Signing in</title></head>
<body><p>Signing in...</p>
<script>
var h = window.location.hash.substring(1);
window.location.replace(window.location.pathname + "?" + h + "&` + fromFragmentParam + `=1");
</script>
</body></html>
`

// returnPage is shown before the exchange has run, so it claims nothing.
const returnPage = `<!doctype html>
<html><head><title>Signing in</title></head>
<body><p>Return to the terminal to finish signing in. You can close this window.</p></body></html>
`

var (
	// ErrNoPendingLogin is returned for a provider callback that no login is waiting for.
	ErrNoPendingLogin = errors.New("no login pending")
	// ErrUnsupportedContentType is returned for a deep link that is not posted as JSON.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// HTTPTransportConfig contains configuration parameters for the callback listener.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// CallbackRouter decides where an incoming callback URL goes: to the login
// waiting in Sessions if there is one, otherwise to Service as an unsolicited
// deep link.
type CallbackRouter struct {
	Sessions *LoopbackAuthSession
	Service  *SessionService
}

// Pending reports whether a login is waiting for its provider callback.
func (cr CallbackRouter) Pending() bool {
	return cr.Sessions != nil && cr.Sessions.Busy()
}

// Route dispatches rawURL. delivered is true when a waiting login took the
// URL; the login reports its own result in that case.
func (cr CallbackRouter) Route(ctx context.Context, rawURL string) (*domain.User, bool, error) {
	if cr.Sessions != nil && cr.Sessions.Deliver(rawURL) {
		return nil, true, nil
	}

	user, err := cr.Service.HandleRedirect(ctx, rawURL)

	return user, false, err
}

// HTTPTransport is the link listener: it receives provider callbacks on the
// loopback address, accepts forwarded deep links and exposes metrics.
type HTTPTransport struct {
	router  CallbackRouter
	metrics *Metrics
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
func NewHTTPTransport(router CallbackRouter, cfg HTTPTransportConfig) *HTTPTransport {
	ht := &HTTPTransport{
		router: router,
		log:    logging.GetLogger("svc.sessionsvc.http_transport"),
		cfg:    cfg,
		mux:    http.NewServeMux(),
	}

	if router.Service != nil {
		ht.metrics = router.Service.Metrics
	}

	ht.mux.HandleFunc("GET /callback", ht.HandleCallback)
	ht.mux.HandleFunc("POST /deeplink", ht.HandleDeepLink)
	ht.mux.HandleFunc("GET /metrics", ht.HandleMetrics)

	return ht
}

// ServeHTTP implements http.Handler:
// - GET /callback: provider redirect target
// - POST /deeplink: forward a link the OS delivered, body {"url": "..."}
// - GET /metrics: Prometheus metrics.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

// HandleCallback receives the identity provider redirect.
func (ht *HTTPTransport) HandleCallback(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleCallback(w, r)
}

func (ht *HTTPTransport) handleCallback(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "path", r.URL.Path))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "callback failed", "error", err)
		} else {
			log.DebugContext(ctx, "callback handled")
		}
	}(r.Context())

	query := r.URL.Query()

	if query.Get("session_id") == "" && query.Get(fromFragmentParam) == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if _, err := io.WriteString(w, forwardFragmentPage); err != nil {
			return fmt.Errorf("write: %w", err)
		}

		return nil
	}

	// any local page can hit the loopback address; only a login we started
	// may be completed here
	if !ht.router.Pending() {
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)

		return ErrNoPendingLogin
	}

	callbackURL := "http://" + r.Host + r.URL.RequestURI()

	_, delivered, err := ht.router.Route(r.Context(), callbackURL)
	if err != nil {
		writeRouteError(w, err)

		return fmt.Errorf("route callback: %w", err)
	}

	log.DebugContext(r.Context(), "callback routed", "delivered", delivered)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if _, err := io.WriteString(w, returnPage); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

type deepLinkRequest struct {
	URL string `json:"url"`
}

type deepLinkResponse struct {
	Delivered bool         `json:"delivered"`
	User      *domain.User `json:"user,omitempty"`
}

// HandleDeepLink accepts a link handed over by the OS (cold or hot start).
func (ht *HTTPTransport) HandleDeepLink(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleDeepLink(w, r)
}

func (ht *HTTPTransport) handleDeepLink(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "path", r.URL.Path))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "deep link failed", "error", err)
		} else {
			log.DebugContext(ctx, "deep link handled")
		}
	}(r.Context())

	// browsers can post text/plain cross-origin without a preflight; JSON
	// needs one, which this listener never grants
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != "application/json" {
		http.Error(w, http.StatusText(http.StatusUnsupportedMediaType), http.StatusUnsupportedMediaType)

		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, r.Header.Get("Content-Type"))
	}

	var req deepLinkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDeepLinkBytes)).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return fmt.Errorf("decode request: %w", err)
	}

	user, delivered, err := ht.router.Route(r.Context(), req.URL)
	if err != nil {
		writeRouteError(w, err)

		return fmt.Errorf("route deep link: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(deepLinkResponse{Delivered: delivered, User: user}); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// HandleMetrics serves the session metrics.
func (ht *HTTPTransport) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if ht.metrics == nil {
		http.NotFound(w, r)

		return
	}

	ht.metrics.Handler().ServeHTTP(w, r)
}

func writeRouteError(w http.ResponseWriter, err error) {
	var status int

	switch {
	case errors.Is(err, domain.ErrMissingSessionToken):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, domain.ErrUnexpectedStatus):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrStaleLogin):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	http.Error(w, http.StatusText(status), status)
}
