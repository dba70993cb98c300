package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/jobboard-session/internal/domain"
	"github.com/mkrupp/jobboard-session/internal/infra/config"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	var cfg Config

	require.NoError(t, config.ParseWith(context.Background(), &cfg, "JOBBOARD_SESSIONCTL", envconfig.MapLookuper(nil)))

	require.Equal(t, "JOBBOARD_SESSIONCTL", cfg.Namespace())
	require.Equal(t, sessionsvc.PlatformNative, cfg.Session.Platform)
	require.Equal(t, "http://127.0.0.1:8765/callback", cfg.Session.CallbackURL)
	require.Equal(t, "127.0.0.1:8765", cfg.HTTP.ServerAddr)
	require.Equal(t, "http://localhost:8001", cfg.Backend.URL)
	require.Equal(t, "sqlite", cfg.Cache.Driver)
	require.Equal(t, "jobboard:session:", cfg.Cache.Redis.KeyPrefix)
	require.Equal(t, 5*time.Second, cfg.Messages.Interval)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestConfig_NamespaceFallback(t *testing.T) {
	t.Parallel()

	var cfg Config

	require.NoError(t, config.ParseWith(context.Background(), &cfg, "JOBBOARD_SESSIONCTL", envconfig.MapLookuper(map[string]string{
		"JOBBOARD_SESSIONCTL_SESSION_PLATFORM": "web",
		"JOBBOARD_BACKEND_URL":                 "https://api.example.com",
		"CACHE_DRIVER":                         "redis",
		"CACHE_REDIS_ADDR":                     "redis:6379",
	})))

	require.Equal(t, sessionsvc.PlatformWeb, cfg.Session.Platform)
	require.Equal(t, "https://api.example.com", cfg.Backend.URL)
	require.Equal(t, "redis", cfg.Cache.Driver)
	require.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, run(context.Background(), Config{}, nil), errUsage)
}

func TestParseOpenURLArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		wantURL  string
		wantRole domain.Role
		wantErr  error
	}{
		{
			name:    "url only",
			args:    []string{"jobboard://callback#session_id=abc"},
			wantURL: "jobboard://callback#session_id=abc",
		},
		{
			name:     "role from web login",
			args:     []string{"--role", "employer", "https://app/#session_id=abc"},
			wantURL:  "https://app/#session_id=abc",
			wantRole: domain.RoleEmployer,
		},
		{
			name:    "unknown role",
			args:    []string{"--role=admin", "https://app/#session_id=abc"},
			wantErr: domain.ErrInvalidRole,
		},
		{
			name:    "missing url",
			args:    []string{"--role", "employer"},
			wantErr: errUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rawURL, role, err := parseOpenURLArgs(tt.args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantURL, rawURL)
			require.Equal(t, tt.wantRole, role)
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"go", "sql"}, splitList(" go, ,sql "))
	require.Empty(t, splitList(""))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	prev := stdout
	stdout = &buf

	t.Cleanup(func() { stdout = prev })

	require.NoError(t, printJSON(map[string]string{"user_id": "u1"}))
	require.JSONEq(t, `{"user_id":"u1"}`, buf.String())
}
