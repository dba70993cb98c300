package logging

import "log/slog"

// NewNopLogger creates a logger that discards all output. Tests use it for
// services whose logs are irrelevant to the assertion.
func NewNopLogger() Logger {
	return slog.New(slog.DiscardHandler)
}
