package backendclient

import (
	"context"
	"net/http"

	"github.com/mkrupp/jobboard-session/internal/domain"
)

// AuthClient defines the session endpoints of the backend.
type AuthClient interface {
	// ExchangeSession trades a one-time session token from the identity
	// provider for a backend session. The request carries no credential; the
	// session cookie set by the response is kept for later calls.
	ExchangeSession(ctx context.Context, sessionID string, role domain.Role) (*domain.User, error)

	// Me returns the user owning the ambient session credential.
	// Returns domain.ErrNotAuthenticated if the backend rejects it.
	Me(ctx context.Context) (*domain.User, error)

	// Logout invalidates the backend session. The response body is ignored.
	Logout(ctx context.Context) error

	// Credentials returns the session cookies currently held for the backend.
	Credentials() []*http.Cookie

	// SetCredentials replaces the held session cookies; nil clears them.
	SetCredentials(cookies []*http.Cookie)
}

// ProfileClient updates the signed-in user's profile.
type ProfileClient interface {
	// UpdateProfile sends the set fields of patch and returns the
	// authoritative record after the update.
	UpdateProfile(ctx context.Context, patch domain.UserPatch) (*domain.User, error)
}

// MessageClient reads conversations of the signed-in user.
type MessageClient interface {
	// Conversation returns all messages exchanged with the given user,
	// oldest first.
	Conversation(ctx context.Context, userID string) ([]domain.Message, error)
}
