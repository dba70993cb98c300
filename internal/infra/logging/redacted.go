package logging

import (
	"log/slog"
	"strings"
)

const redactedVisible = 4

// Redacted is a string that only reveals its first few characters when logged.
// Use it for session tokens and cookie values.
type Redacted string

var _ slog.LogValuer = Redacted("")

// LogValue implements slog.LogValuer.
func (r Redacted) LogValue() slog.Value {
	s := string(r)
	if len(s) <= redactedVisible {
		return slog.StringValue(strings.Repeat("*", len(s)))
	}

	return slog.StringValue(s[:redactedVisible] + strings.Repeat("*", len(s)-redactedVisible))
}
