package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/mkrupp/jobboard-session/internal/domain"
	context_ "github.com/mkrupp/jobboard-session/internal/infra/context"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

const (
	TraceIDHeader = "X-Request-ID"

	maxResponseBytes = 1 << 20
)

// HTTPClientConfig holds configuration for the backend HTTP client.
type HTTPClientConfig struct {
	// URL is the backend origin; API paths are resolved below it
	URL string `env:"URL, default=http://localhost:8001"`

	// Timeout bounds each request; zero leaves requests unbounded
	Timeout time.Duration `env:"TIMEOUT, default=0s"`
}

// StatusError reports a non-success HTTP status from the backend.
// 401 and 403 also match domain.ErrNotAuthenticated.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *StatusError) Unwrap() []error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return []error{domain.ErrUnexpectedStatus, domain.ErrNotAuthenticated}
	}

	return []error{domain.ErrUnexpectedStatus}
}

// HTTPClient talks to the marketplace backend. It keeps the session cookie
// the backend issues at session exchange and attaches it to every
// credential-bearing request.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    *url.URL
	log        logging.Logger

	jarLock sync.Mutex
	jar     http.CookieJar
}

var (
	_ AuthClient    = (*HTTPClient)(nil)
	_ ProfileClient = (*HTTPClient)(nil)
	_ MessageClient = (*HTTPClient)(nil)
)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If httpClient is nil, a client with cfg.Timeout is used. The client's own
// Jar is ignored; cookies are managed per request.
func NewHTTPClient(cfg HTTPClientConfig, httpClient *http.Client) (*HTTPClient, error) {
	baseURL, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("parse backend url: %q is not absolute", cfg.URL) //nolint:err113
	}

	if httpClient == nil {
		//nolint:exhaustruct
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		log:        logging.GetLogger("svc.sessionsvc.backendclient.http_client"),
		jar:        newJar(),
	}, nil
}

func newJar() http.CookieJar {
	//nolint:exhaustruct
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return jar
}

// ExchangeSession implements AuthClient.ExchangeSession via POST /api/auth/session.
func (c *HTTPClient) ExchangeSession(ctx context.Context, sessionID string, role domain.Role) (*domain.User, error) {
	body := struct {
		SessionID string      `json:"session_id"`
		UserType  domain.Role `json:"user_type"`
	}{sessionID, role}

	var user domain.User
	if err := c.do(ctx, "exchange session", http.MethodPost, "/api/auth/session", body, false, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Me implements AuthClient.Me via GET /api/auth/me.
func (c *HTTPClient) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, "get me", http.MethodGet, "/api/auth/me", nil, true, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Logout implements AuthClient.Logout via POST /api/auth/logout.
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/auth/logout", nil, true, nil)
}

// UpdateProfile implements ProfileClient.UpdateProfile via PUT /api/users/profile.
func (c *HTTPClient) UpdateProfile(ctx context.Context, patch domain.UserPatch) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, "update profile", http.MethodPut, "/api/users/profile", patch, true, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Conversation implements MessageClient.Conversation via
// GET /api/messages/conversation/{user_id}.
func (c *HTTPClient) Conversation(ctx context.Context, userID string) ([]domain.Message, error) {
	var messages []domain.Message

	path := "/api/messages/conversation/" + url.PathEscape(userID)
	if err := c.do(ctx, "get conversation", http.MethodGet, path, nil, true, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// Credentials implements AuthClient.Credentials.
func (c *HTTPClient) Credentials() []*http.Cookie {
	c.jarLock.Lock()
	defer c.jarLock.Unlock()

	return c.jar.Cookies(c.baseURL)
}

// SetCredentials implements AuthClient.SetCredentials.
func (c *HTTPClient) SetCredentials(cookies []*http.Cookie) {
	c.jarLock.Lock()
	defer c.jarLock.Unlock()

	c.jar = newJar()

	if len(cookies) > 0 {
		c.jar.SetCookies(c.baseURL, insecure(cookies))
	}
}

//nolint:cyclop
func (c *HTTPClient) do(
	ctx context.Context,
	op, method, path string,
	in any,
	withCredentials bool,
	out any,
) error {
	log := c.log.With(logging.Group("http", "method", method, "path", path))

	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		req.Header.Set(TraceIDHeader, traceID)
	}

	if withCredentials {
		for _, cookie := range c.Credentials() {
			req.AddCookie(cookie)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(domain.ErrBackendUnavailable, fmt.Errorf("%s: %w", op, err))
	}
	defer resp.Body.Close()

	c.storeCookies(resp.Cookies())

	log.DebugContext(ctx, "backend response", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return errors.Join(domain.ErrUnexpectedStatus, fmt.Errorf("%s: decode response: %w", op, err))
	}

	return nil
}

func (c *HTTPClient) storeCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	c.jarLock.Lock()
	defer c.jarLock.Unlock()

	c.jar.SetCookies(c.baseURL, insecure(cookies))
}

// insecure copies cookies without the Secure flag. The jar withholds Secure
// cookies from http URLs, but the configured backend origin is trusted
// whatever its scheme (local backends run on plain http).
func insecure(cookies []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))

	for _, cookie := range cookies {
		cp := *cookie
		cp.Secure = false
		out = append(out, &cp)
	}

	return out
}
