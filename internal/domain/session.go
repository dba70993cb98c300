package domain

import "errors"

var (
	// ErrNotAuthenticated is returned when the backend rejects the ambient
	// credential or an operation needs a current user and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBackendUnavailable is returned when the backend cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrUnexpectedStatus is returned when the backend answers with a non-success status.
	ErrUnexpectedStatus = errors.New("unexpected backend status")
	// ErrMissingSessionToken is returned when a callback URL carries no session_id.
	ErrMissingSessionToken = errors.New("no session token in callback url")
	// ErrAuthCancelled is returned when the interactive auth session is dismissed.
	ErrAuthCancelled = errors.New("auth session cancelled")
	// ErrStaleLogin is returned when a login completes after a newer login or a logout.
	ErrStaleLogin = errors.New("stale login discarded")
	// ErrCache is returned when the persisted cache cannot be read or written.
	ErrCache = errors.New("session cache failure")
)

// SessionState is the lifecycle state of the session in this process.
type SessionState int

const (
	StateUnknown SessionState = iota
	StateUnauthenticated
	StateAuthenticating
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

// Snapshot is a consistent view of the session at one point in time.
// Version increases by one on every state change.
type Snapshot struct {
	User    *User
	State   SessionState
	Loading bool
	Version uint64
}
