package sessionsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/mkrupp/jobboard-session/internal/domain"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
	"github.com/mkrupp/jobboard-session/internal/repo/cache"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc/backendclient"
)

var (
	// ErrStopped is returned when an operation is submitted after Run returned.
	ErrStopped = errors.New("session service stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("session service already running")
)

// Session is the capability the rest of the application consumes.
type Session interface {
	CurrentUser() (*domain.User, bool)
	IsLoading() bool
	Login(ctx context.Context, role domain.Role) (*domain.User, error)
	Logout(ctx context.Context) error
	UpdateUser(ctx context.Context, patch domain.UserPatch) (*domain.User, error)
}

type opResult struct {
	user *domain.User
	err  error
}

type operation struct {
	ctx   context.Context //nolint:containedctx
	fn    func(ctx context.Context) (*domain.User, error)
	reply chan opResult
}

// SessionService owns the current user, its persisted copy and the
// login/logout protocol with the identity provider and the backend.
//
// Every state-changing step runs on the goroutine started with Run, one at a
// time; readers use the snapshot and never block on the network.
type SessionService struct {
	Config  SessionConfig
	Backend backendclient.AuthClient
	Cache   cache.Repository
	Browser AuthSession
	Log     logging.Logger
	Metrics *Metrics

	ops     chan operation
	done    chan struct{}
	running atomic.Bool

	mu          sync.RWMutex
	snap        domain.Snapshot
	subscribers map[chan domain.Snapshot]struct{}

	// owned by the Run goroutine
	epoch          uint64
	authenticating bool
	resumeState    domain.SessionState
	pendingRole    domain.Role
}

var _ Session = (*SessionService)(nil)

// busyAuthSession is implemented by auth sessions that host one login at a time.
type busyAuthSession interface {
	Busy() bool
}

type loginState struct {
	epoch          uint64
	authenticating bool
	resumeState    domain.SessionState
	pendingRole    domain.Role
}

// NewSessionService creates a SessionService. Run must be started before any
// operation is invoked.
func NewSessionService(
	cacheFactory cache.RepositoryFactory,
	backend backendclient.AuthClient,
	browser AuthSession,
	cfg SessionConfig,
) (*SessionService, error) {
	repo, err := cacheFactory()
	if err != nil {
		return nil, fmt.Errorf("new cache repo: %w", err)
	}

	s := &SessionService{
		Config:      cfg,
		Backend:     backend,
		Cache:       repo,
		Browser:     browser,
		Log:         logging.GetLogger("svc.sessionsvc.session_service"),
		Metrics:     NewMetrics(),
		ops:         make(chan operation),
		done:        make(chan struct{}),
		subscribers: make(map[chan domain.Snapshot]struct{}),
		snap:        domain.Snapshot{State: domain.StateUnknown, Loading: true},
	}

	s.Metrics.setState(domain.StateUnknown)

	return s, nil
}

// Run executes submitted operations one at a time until ctx is done.
func (s *SessionService) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	s.Log.DebugContext(ctx, "session service running")

	for {
		select {
		case <-ctx.Done():
			s.Log.DebugContext(ctx, "session service stopped")

			return nil
		case op := <-s.ops:
			user, err := op.fn(op.ctx)
			op.reply <- opResult{user: user, err: err}
		}
	}
}

func (s *SessionService) submit(
	ctx context.Context,
	fn func(ctx context.Context) (*domain.User, error),
) (*domain.User, error) {
	op := operation{ctx: ctx, fn: fn, reply: make(chan opResult, 1)}

	select {
	case s.ops <- op:
	case <-s.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("submit: %w", ctx.Err())
	}

	select {
	case r := <-op.reply:
		return r.user, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait: %w", ctx.Err())
	}
}

// CheckAuth revalidates a previously persisted session with the backend.
// Without a cached user it settles as unauthenticated and returns (nil, nil).
// Any failure clears the cache. The loading flag is cleared in every case.
func (s *SessionService) CheckAuth(ctx context.Context) (user *domain.User, err error) {
	defer s.finish(ctx, "check_auth", &err)

	return s.submit(ctx, s.checkAuth)
}

// Login runs the interactive identity-provider flow for role and exchanges
// the returned session token. On the web platform it returns (nil, nil)
// right after redirecting; HandleRedirect completes the login.
//
//nolint:cyclop
func (s *SessionService) Login(ctx context.Context, role domain.Role) (user *domain.User, err error) {
	defer s.finish(ctx, "login", &err)

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}

	redirectURL := s.Config.RedirectURL()

	authURL, err := BuildAuthURL(s.Config.ProviderURL, redirectURL)
	if err != nil {
		return nil, err
	}

	var (
		epoch uint64
		prev  loginState
	)

	if _, err := s.submit(ctx, func(ctx context.Context) (*domain.User, error) {
		if b, ok := s.Browser.(busyAuthSession); ok && b.Busy() {
			return nil, ErrAuthSessionBusy
		}

		prev = s.loginState()
		epoch = s.beginLogin(ctx, role)

		return nil, nil
	}); err != nil {
		return nil, err
	}

	openCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.Config.LoginTimeout > 0 {
		openCtx, cancel = context.WithTimeout(ctx, s.Config.LoginTimeout)
	}

	result, err := s.Browser.Open(openCtx, authURL, redirectURL)

	cancel()

	switch {
	case errors.Is(err, ErrAuthSessionBusy):
		// another login took the session between begin and Open
		s.yieldLogin(ctx, epoch, prev)

		return nil, fmt.Errorf("open auth session: %w", err)
	case err != nil:
		s.abortLogin(ctx, epoch)

		return nil, fmt.Errorf("open auth session: %w", err)
	case result.Type == AuthSessionRedirected:
		s.Log.InfoContext(ctx, "redirected to identity provider; waiting for callback link")

		return nil, nil
	case result.Type != AuthSessionSuccess:
		s.abortLogin(ctx, epoch)

		return nil, domain.ErrAuthCancelled
	}

	token, ok := ParseSessionID(result.URL)
	if !ok {
		s.abortLogin(ctx, epoch)

		return nil, domain.ErrMissingSessionToken
	}

	return s.submit(ctx, func(ctx context.Context) (*domain.User, error) {
		return s.exchange(ctx, token, role, epoch)
	})
}

// HandleRedirect is the link listener entry point for callback URLs that
// arrive outside an embedded auth session (cold start, hot start, web
// redirect). A URL without session_id changes nothing.
func (s *SessionService) HandleRedirect(ctx context.Context, callbackURL string) (user *domain.User, err error) {
	defer s.finish(ctx, "handle_redirect", &err)

	token, ok := ParseSessionID(callbackURL)
	if !ok {
		return nil, domain.ErrMissingSessionToken
	}

	return s.submit(ctx, func(ctx context.Context) (*domain.User, error) {
		role := domain.RoleJobSeeker
		if s.authenticating && s.pendingRole.Valid() {
			role = s.pendingRole
		}

		return s.exchange(ctx, token, role, 0)
	})
}

// ExchangeSessionID trades a session token for a backend session tagged with
// role and makes the returned user current.
func (s *SessionService) ExchangeSessionID(
	ctx context.Context,
	token string,
	role domain.Role,
) (user *domain.User, err error) {
	defer s.finish(ctx, "exchange_session", &err)

	if token == "" {
		return nil, domain.ErrMissingSessionToken
	}

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}

	return s.submit(ctx, func(ctx context.Context) (*domain.User, error) {
		return s.exchange(ctx, token, role, 0)
	})
}

// Logout tells the backend to end the session and then clears the current
// user and the cache. The local session is cleared even when the backend
// call fails; that failure is still returned.
func (s *SessionService) Logout(ctx context.Context) (err error) {
	defer s.finish(ctx, "logout", &err)

	_, err = s.submit(ctx, s.logout)

	return err
}

// UpdateUser merges patch into the current user and re-persists it. It does
// not call the backend; callers pass fields the backend already accepted.
func (s *SessionService) UpdateUser(ctx context.Context, patch domain.UserPatch) (user *domain.User, err error) {
	defer s.finish(ctx, "update_user", &err)

	return s.submit(ctx, func(ctx context.Context) (*domain.User, error) {
		current := s.Snapshot().User
		if current == nil {
			return nil, domain.ErrNotAuthenticated
		}

		merged := patch.Apply(current)
		s.apply(merged, s.Snapshot().State)

		if err := s.persistUser(ctx, merged); err != nil {
			return merged.Clone(), err
		}

		return merged.Clone(), nil
	})
}

// Close releases the cache repository.
func (s *SessionService) Close() error {
	if err := s.Cache.Close(); err != nil {
		return fmt.Errorf("close cache repo: %w", err)
	}

	return nil
}

func (s *SessionService) finish(ctx context.Context, op string, err *error) {
	s.Metrics.observe(op, *err)

	snap := s.Snapshot()
	log := s.Log.With(logging.Group("session",
		"op", op,
		"state", snap.State.String(),
		"version", snap.Version,
	))

	if *err != nil {
		log.ErrorContext(ctx, "session operation failed", "error", *err)
	} else {
		log.DebugContext(ctx, "session operation done")
	}
}

// The methods below run on the Run goroutine only.

func (s *SessionService) checkAuth(ctx context.Context) (*domain.User, error) {
	defer s.setLoading(false)

	if _, ok, err := s.Cache.Get(ctx, cache.UserKey); err != nil {
		s.forget(ctx)
		s.settle(nil)

		return nil, errors.Join(domain.ErrCache, fmt.Errorf("read cached user: %w", err))
	} else if !ok {
		s.settle(nil)

		return nil, nil
	}

	s.restoreCredentials(ctx)

	user, err := s.Backend.Me(ctx)
	if err == nil {
		err = user.Validate()
	}

	if err != nil {
		s.forget(ctx)
		s.settle(nil)

		return nil, fmt.Errorf("revalidate session: %w", err)
	}

	if err := s.persistUser(ctx, user); err != nil {
		s.Log.WarnContext(ctx, "refresh cached user failed", "error", err)
	}

	s.settle(user)

	return user.Clone(), nil
}

func (s *SessionService) beginLogin(ctx context.Context, role domain.Role) uint64 {
	s.epoch++

	if !s.authenticating {
		s.resumeState = s.Snapshot().State
		if s.resumeState == domain.StateUnknown {
			s.resumeState = domain.StateUnauthenticated
		}
	}

	s.authenticating = true
	s.pendingRole = role

	s.apply(s.Snapshot().User, domain.StateAuthenticating)

	s.Log.DebugContext(ctx, "login started", "role", role, "epoch", s.epoch)

	return s.epoch
}

// abortLogin returns to the pre-login state unless a newer login or a logout
// already took over.
func (s *SessionService) abortLogin(ctx context.Context, epoch uint64) {
	_, _ = s.submit(context.WithoutCancel(ctx), func(context.Context) (*domain.User, error) {
		if s.authenticating && s.epoch == epoch {
			s.endLogin()
		}

		return nil, nil
	})
}

// yieldLogin undoes beginLogin for a login that never got the auth session,
// so the login holding it stays current.
func (s *SessionService) yieldLogin(ctx context.Context, epoch uint64, prev loginState) {
	_, _ = s.submit(context.WithoutCancel(ctx), func(context.Context) (*domain.User, error) {
		if s.epoch != epoch {
			return nil, nil
		}

		s.epoch = prev.epoch
		s.resumeState = prev.resumeState
		s.pendingRole = prev.pendingRole

		if !prev.authenticating {
			s.endLogin()
		}

		return nil, nil
	})
}

func (s *SessionService) loginState() loginState {
	return loginState{
		epoch:          s.epoch,
		authenticating: s.authenticating,
		resumeState:    s.resumeState,
		pendingRole:    s.pendingRole,
	}
}

func (s *SessionService) endLogin() {
	s.authenticating = false
	s.pendingRole = ""
	s.apply(s.Snapshot().User, s.resumeState)
}

// exchange performs the session exchange. A non-zero epoch ties it to the
// login that started it; if a newer login or a logout happened since, the
// token is not used.
func (s *SessionService) exchange(
	ctx context.Context,
	token string,
	role domain.Role,
	epoch uint64,
) (*domain.User, error) {
	defer s.setLoading(false)

	if epoch != 0 && epoch != s.epoch {
		return nil, domain.ErrStaleLogin
	}

	log := s.Log.With(logging.Group("exchange",
		"session_id", logging.Redacted(token),
		"role", role,
	))

	user, err := s.Backend.ExchangeSession(ctx, token, role)
	if err == nil {
		err = user.Validate()
	}

	if err != nil {
		if s.authenticating && (epoch == 0 || epoch == s.epoch) {
			s.endLogin()
		}

		return nil, fmt.Errorf("exchange session: %w", err)
	}

	s.authenticating = false
	s.pendingRole = ""

	if err := s.persistUser(ctx, user); err != nil {
		log.WarnContext(ctx, "persist user failed", "error", err)
	}

	s.persistCredentials(ctx)
	s.apply(user, domain.StateAuthenticated)

	log.InfoContext(ctx, "session established", "user_id", user.UserID)

	return user.Clone(), nil
}

func (s *SessionService) logout(ctx context.Context) (*domain.User, error) {
	s.epoch++
	s.authenticating = false
	s.pendingRole = ""

	backendErr := s.Backend.Logout(ctx)
	if backendErr != nil {
		s.Log.WarnContext(ctx, "backend logout failed; clearing local session anyway", "error", backendErr)
	}

	s.forget(ctx)
	s.apply(nil, domain.StateUnauthenticated)

	if backendErr != nil {
		return nil, fmt.Errorf("backend logout: %w", backendErr)
	}

	return nil, nil
}

// settle records the outcome of a revalidation. While a login is in flight
// the visible state stays Authenticating and only the state to resume to
// changes.
func (s *SessionService) settle(user *domain.User) {
	state := domain.StateUnauthenticated
	if user != nil {
		state = domain.StateAuthenticated
	}

	if s.authenticating {
		s.resumeState = state
		state = domain.StateAuthenticating
	}

	s.apply(user, state)
}

func (s *SessionService) persistUser(ctx context.Context, user *domain.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return errors.Join(domain.ErrCache, fmt.Errorf("marshal user: %w", err))
	}

	if err := s.Cache.Put(ctx, cache.UserKey, payload); err != nil {
		return errors.Join(domain.ErrCache, fmt.Errorf("write cached user: %w", err))
	}

	return nil
}

func (s *SessionService) persistCredentials(ctx context.Context) {
	cookies := s.Backend.Credentials()
	if len(cookies) == 0 {
		if err := s.Cache.Delete(ctx, cache.CredentialKey); err != nil {
			s.Log.WarnContext(ctx, "delete cached credentials failed", "error", err)
		}

		return
	}

	payload, err := json.Marshal(cookies)
	if err == nil {
		err = s.Cache.Put(ctx, cache.CredentialKey, payload)
	}

	if err != nil {
		s.Log.WarnContext(ctx, "persist credentials failed", "error", err)
	}
}

func (s *SessionService) restoreCredentials(ctx context.Context) {
	payload, ok, err := s.Cache.Get(ctx, cache.CredentialKey)
	if err != nil || !ok {
		if err != nil {
			s.Log.WarnContext(ctx, "read cached credentials failed", "error", err)
		}

		return
	}

	var cookies []*http.Cookie
	if err := json.Unmarshal(payload, &cookies); err != nil {
		s.Log.WarnContext(ctx, "decode cached credentials failed", "error", err)

		return
	}

	s.Backend.SetCredentials(cookies)
}

// forget removes every trace of the session from the cache and the client.
func (s *SessionService) forget(ctx context.Context) {
	for _, key := range []string{cache.UserKey, cache.CredentialKey} {
		if err := s.Cache.Delete(ctx, key); err != nil {
			s.Log.WarnContext(ctx, "delete cache entry failed", "key", key, "error", err)
		}
	}

	s.Backend.SetCredentials(nil)
}
