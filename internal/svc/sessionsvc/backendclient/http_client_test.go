package backendclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrupp/jobboard-session/internal/domain"
	context_ "github.com/mkrupp/jobboard-session/internal/infra/context"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc/backendclient"
)

const testUserJSON = `{"user_id":"u2","email":"e@corp.com","name":"Emp","user_type":"employer","skills":["hiring"]}`

// fakeBackend mimics the session endpoints: exchange issues a cookie, me and
// logout require it.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session_token"); err == nil {
			t.Error("session exchange must not carry a credential")
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["session_id"] != "abc123" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if body["user_type"] != "employer" {
			t.Errorf("user_type = %q, want employer", body["user_type"])
		}

		//nolint:exhaustruct
		http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "tok-1", Path: "/", HttpOnly: true})
		_, _ = w.Write([]byte(testUserJSON))
	})

	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session_token")
		if err != nil || cookie.Value != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if r.Header.Get(backendclient.TraceIDHeader) != "trace-1" {
			t.Errorf("missing trace header")
		}

		_, _ = w.Write([]byte(testUserJSON))
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		//nolint:exhaustruct
		http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "", Path: "/", MaxAge: -1})
		_, _ = w.Write([]byte(`{"message":"Logged out"}`))
	})

	mux.HandleFunc("PUT /api/users/profile", func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)

		if _, ok := patch["city"]; !ok || len(patch) != 1 {
			t.Errorf("profile body = %v, want only city", patch)
		}

		_, _ = w.Write([]byte(`{"user_id":"u2","email":"e@corp.com","name":"Emp","user_type":"employer","city":"Lyon"}`))
	})

	mux.HandleFunc("GET /api/messages/conversation/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"message_id":"m1","sender_id":"` + r.PathValue("id") + `","receiver_id":"u2","sender_name":"S","content":"hi","read":false}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func newClient(t *testing.T, url string) *backendclient.HTTPClient {
	t.Helper()

	c, err := backendclient.NewHTTPClient(backendclient.HTTPClientConfig{URL: url}, nil)
	require.NoError(t, err)

	return c
}

func TestHTTPClient_SessionLifecycle(t *testing.T) {
	t.Parallel()

	srv := fakeBackend(t)
	client := newClient(t, srv.URL)
	ctx := context_.WithTraceID(context.Background(), "trace-1")

	_, err := client.Me(ctx)
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)

	user, err := client.ExchangeSession(ctx, "abc123", domain.RoleEmployer)
	require.NoError(t, err)
	require.Equal(t, "u2", user.UserID)
	require.Equal(t, domain.RoleEmployer, user.UserType)
	require.Len(t, client.Credentials(), 1)

	user, err = client.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"hiring"}, user.Skills)

	require.NoError(t, client.Logout(ctx))
	require.Empty(t, client.Credentials(), "logout response expires the cookie")
}

func TestHTTPClient_SecureCookieOverPlainHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/session", func(w http.ResponseWriter, _ *http.Request) {
		//nolint:exhaustruct
		http.SetCookie(w, &http.Cookie{
			Name: "session_token", Value: "tok-s", Path: "/",
			HttpOnly: true, Secure: true, SameSite: http.SameSiteNoneMode,
		})
		_, _ = w.Write([]byte(testUserJSON))
	})

	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session_token"); err != nil || c.Value != "tok-s" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		_, _ = w.Write([]byte(testUserJSON))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := newClient(t, srv.URL)

	_, err := client.ExchangeSession(context.Background(), "abc123", domain.RoleEmployer)
	require.NoError(t, err)

	creds := client.Credentials()
	require.Len(t, creds, 1)
	require.Equal(t, "tok-s", creds[0].Value)

	_, err = client.Me(context.Background())
	require.NoError(t, err)

	// restored credentials keep working in a new process
	second := newClient(t, srv.URL)
	//nolint:exhaustruct
	second.SetCredentials([]*http.Cookie{{Name: "session_token", Value: "tok-s", Secure: true}})

	_, err = second.Me(context.Background())
	require.NoError(t, err)
}

func TestHTTPClient_ExchangeRejected(t *testing.T) {
	t.Parallel()

	client := newClient(t, fakeBackend(t).URL)

	_, err := client.ExchangeSession(context.Background(), "wrong", domain.RoleEmployer)

	var statusErr *backendclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.ErrorIs(t, err, domain.ErrUnexpectedStatus)
}

func TestHTTPClient_SetCredentialsRestoresSession(t *testing.T) {
	t.Parallel()

	srv := fakeBackend(t)

	first := newClient(t, srv.URL)
	_, err := first.ExchangeSession(context.Background(), "abc123", domain.RoleEmployer)
	require.NoError(t, err)

	// a second process restores the persisted cookies
	second := newClient(t, srv.URL)
	second.SetCredentials(first.Credentials())

	user, err := second.Me(context_.WithTraceID(context.Background(), "trace-1"))
	require.NoError(t, err)
	require.Equal(t, "u2", user.UserID)

	second.SetCredentials(nil)
	require.Empty(t, second.Credentials())
}

func TestHTTPClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url).Me(context.Background())
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestHTTPClient_ProfileAndMessages(t *testing.T) {
	t.Parallel()

	client := newClient(t, fakeBackend(t).URL)
	city := "Lyon"

	user, err := client.UpdateProfile(context.Background(), domain.UserPatch{City: &city})
	require.NoError(t, err)
	require.Equal(t, "Lyon", *user.City)

	messages, err := client.Conversation(context.Background(), "u9")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "u9", messages[0].SenderID)
}

func TestNewHTTPClient_RejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := backendclient.NewHTTPClient(backendclient.HTTPClientConfig{URL: "/api"}, nil)
	require.Error(t, err)
}
