package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

func newConsoleLogger(buf *bytes.Buffer, name string, pkgLevels map[string]slog.Level) *slog.Logger {
	//nolint:exhaustruct
	h := &logging.ConsoleHandler{
		Output:    buf,
		Level:     slog.LevelDebug,
		PkgLevels: pkgLevels,
	}

	return slog.New(h).With(logging.LoggerNameKey, name)
}

func TestConsoleHandler_PkgLevels(t *testing.T) {
	t.Parallel()

	levels := map[string]slog.Level{
		"":                             slog.LevelInfo,
		"svc.sessionsvc":               slog.LevelWarn,
		"svc.sessionsvc.backendclient": slog.LevelDebug,
	}

	tests := []struct {
		name    string
		logger  string
		level   slog.Level
		wantOut bool
	}{
		{name: "fallback allows info", logger: "cmd.sessionctl", level: slog.LevelInfo, wantOut: true},
		{name: "fallback drops debug", logger: "cmd.sessionctl", level: slog.LevelDebug, wantOut: false},
		{name: "prefix raises threshold", logger: "svc.sessionsvc.session_service", level: slog.LevelInfo, wantOut: false},
		{name: "prefix passes warn", logger: "svc.sessionsvc.session_service", level: slog.LevelWarn, wantOut: true},
		{name: "longest prefix wins", logger: "svc.sessionsvc.backendclient.http_client", level: slog.LevelDebug, wantOut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			newConsoleLogger(&buf, tt.logger, levels).Log(context.Background(), tt.level, "hello")

			require.Equal(t, tt.wantOut, buf.Len() > 0, buf.String())
		})
	}
}

func TestConsoleHandler_RendersGroupsAndRedacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	newConsoleLogger(&buf, "test", nil).Info("exchange",
		logging.Group("session", "id", logging.Redacted("abc123456")),
	)

	out := buf.String()
	require.Contains(t, out, "session.id=")
	require.Contains(t, out, "abc1*****")
	require.NotContains(t, out, "abc123456")
}

func TestRedacted_Short(t *testing.T) {
	t.Parallel()

	require.Equal(t, "***", logging.Redacted("abc").LogValue().String())
	require.Equal(t, "", logging.Redacted("").LogValue().String())
}
