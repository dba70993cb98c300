package sessionsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

// ErrAuthSessionBusy is returned when an interactive login is already waiting
// for its callback.
var ErrAuthSessionBusy = errors.New("auth session already open")

// AuthSessionResultType describes how an interactive auth session ended.
type AuthSessionResultType int

const (
	// AuthSessionSuccess means the provider redirected to the callback URL.
	AuthSessionSuccess AuthSessionResultType = iota
	// AuthSessionCancel means the user dismissed the session or it timed out.
	AuthSessionCancel
	// AuthSessionRedirected means the whole app navigated away to the
	// provider; the callback arrives later through the link listener.
	AuthSessionRedirected
)

// AuthSessionResult is the outcome of AuthSession.Open.
type AuthSessionResult struct {
	Type AuthSessionResultType
	// URL is the callback URL, set for AuthSessionSuccess.
	URL string
}

// AuthSession hosts the identity provider's login page out of process.
type AuthSession interface {
	// Open presents authURL to the user and waits until the provider
	// redirects to redirectURL or ctx is done.
	Open(ctx context.Context, authURL, redirectURL string) (AuthSessionResult, error)
}

// BrowserFunc opens a URL in the user's browser.
type BrowserFunc func(url string) error

// LoopbackAuthSession opens the provider in the system browser and waits for
// the callback to be delivered by the callback listener.
type LoopbackAuthSession struct {
	openBrowser BrowserFunc
	log         logging.Logger

	mu     sync.Mutex
	waiter chan string
}

var _ AuthSession = (*LoopbackAuthSession)(nil)

// NewLoopbackAuthSession creates a LoopbackAuthSession using openBrowser to
// show the provider page.
func NewLoopbackAuthSession(openBrowser BrowserFunc) *LoopbackAuthSession {
	return &LoopbackAuthSession{
		openBrowser: openBrowser,
		log:         logging.GetLogger("svc.sessionsvc.loopback_auth_session"),
	}
}

// Open implements AuthSession.Open. Only one session may wait at a time.
func (a *LoopbackAuthSession) Open(ctx context.Context, authURL, redirectURL string) (AuthSessionResult, error) {
	waiter := make(chan string, 1)

	a.mu.Lock()
	if a.waiter != nil {
		a.mu.Unlock()

		return AuthSessionResult{}, ErrAuthSessionBusy
	}
	a.waiter = waiter
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.waiter = nil
		a.mu.Unlock()
	}()

	a.log.InfoContext(ctx, "opening auth session", "redirect", redirectURL)

	if err := a.openBrowser(authURL); err != nil {
		return AuthSessionResult{}, fmt.Errorf("open browser: %w", err)
	}

	select {
	case callbackURL := <-waiter:
		return AuthSessionResult{Type: AuthSessionSuccess, URL: callbackURL}, nil
	case <-ctx.Done():
		a.log.InfoContext(ctx, "auth session abandoned", "cause", context.Cause(ctx))

		return AuthSessionResult{Type: AuthSessionCancel}, nil
	}
}

// Busy reports whether a login is waiting for its callback.
func (a *LoopbackAuthSession) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.waiter != nil
}

// Deliver hands a callback URL to the waiting Open call. Returns false when
// no login is waiting, in which case the URL should be treated as an
// unsolicited deep link.
func (a *LoopbackAuthSession) Deliver(callbackURL string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.waiter == nil {
		return false
	}

	select {
	case a.waiter <- callbackURL:
		return true
	default:
		return false
	}
}

// RedirectAuthSession is used where no embedded session can be hosted: it
// navigates to the provider and returns immediately.
type RedirectAuthSession struct {
	openBrowser BrowserFunc
}

var _ AuthSession = (*RedirectAuthSession)(nil)

// NewRedirectAuthSession creates a RedirectAuthSession.
func NewRedirectAuthSession(openBrowser BrowserFunc) *RedirectAuthSession {
	return &RedirectAuthSession{openBrowser: openBrowser}
}

// Open implements AuthSession.Open.
func (a *RedirectAuthSession) Open(_ context.Context, authURL, _ string) (AuthSessionResult, error) {
	if err := a.openBrowser(authURL); err != nil {
		return AuthSessionResult{}, fmt.Errorf("redirect to provider: %w", err)
	}

	return AuthSessionResult{Type: AuthSessionRedirected}, nil
}
