package sessionsvc_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc"
)

func TestParseSessionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		url       string
		wantToken string
		wantOK    bool
	}{
		{name: "fragment", url: "https://app/callback#session_id=abc123", wantToken: "abc123", wantOK: true},
		{name: "fragment with trailing params", url: "https://app/callback#session_id=abc123&other=x", wantToken: "abc123", wantOK: true},
		{name: "query", url: "https://app/callback?session_id=q1", wantToken: "q1", wantOK: true},
		{name: "query with trailing params", url: "https://app/callback?session_id=q1&state=s&x=y", wantToken: "q1", wantOK: true},
		{name: "fragment wins over query", url: "https://app/callback?session_id=q1#session_id=f1", wantToken: "f1", wantOK: true},
		{name: "deep link scheme", url: "jobboard:///#session_id=dl-7", wantToken: "dl-7", wantOK: true},
		{name: "missing", url: "https://app/callback?state=s", wantOK: false},
		{name: "not first query param", url: "https://app/callback?state=s&session_id=q1", wantOK: false},
		{name: "empty token", url: "https://app/callback#session_id=&x=1", wantOK: false},
		{name: "empty url", url: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, ok := sessionsvc.ParseSessionID(tt.url)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantToken, token)
		})
	}
}

func TestBuildAuthURL(t *testing.T) {
	t.Parallel()

	got, err := sessionsvc.BuildAuthURL("https://auth.example.com", "http://127.0.0.1:8765/callback")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "auth.example.com", u.Host)
	require.Equal(t, "/", u.Path)
	require.Equal(t, "http://127.0.0.1:8765/callback", u.Query().Get("redirect"))

	_, err = sessionsvc.BuildAuthURL("not a url", "x")
	require.Error(t, err)
}

func TestSessionConfig_RedirectURL(t *testing.T) {
	t.Parallel()

	native := sessionsvc.SessionConfig{Platform: sessionsvc.PlatformNative, CallbackURL: "jobboard:///"}
	require.Equal(t, "jobboard:///", native.RedirectURL())

	web := sessionsvc.SessionConfig{Platform: sessionsvc.PlatformWeb, WebOrigin: "https://api.example.com/"}
	require.Equal(t, "https://api.example.com/", web.RedirectURL())
}
