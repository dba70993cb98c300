package sessionsvc

import (
	"strings"
	"time"
)

// Platform selects how the interactive login is hosted.
type Platform string

const (
	// PlatformNative hosts the identity provider in an out-of-process auth
	// session and receives the callback on CallbackURL.
	PlatformNative Platform = "native"
	// PlatformWeb performs a full-page redirect; the callback comes back to
	// WebOrigin and reaches the service through the link listener.
	PlatformWeb Platform = "web"
)

// SessionConfig contains configuration parameters for the session service.
type SessionConfig struct {
	// Platform is "native" or "web"
	Platform Platform `env:"PLATFORM, default=native"`

	// ProviderURL is the identity provider login page
	ProviderURL string `env:"PROVIDER_URL, default=https://auth.emergentagent.com/"`

	// CallbackURL is the native deep-link (or loopback) address the provider redirects to
	CallbackURL string `env:"CALLBACK_URL, default=http://127.0.0.1:8765/callback"`

	// WebOrigin is the web app origin; empty means the backend origin
	WebOrigin string `env:"WEB_ORIGIN"`

	// LoginTimeout bounds the wait for the interactive auth session; zero waits forever
	LoginTimeout time.Duration `env:"LOGIN_TIMEOUT, default=5m"`
}

// RedirectURL returns the callback address handed to the identity provider.
func (c SessionConfig) RedirectURL() string {
	if c.Platform == PlatformWeb {
		return strings.TrimRight(c.WebOrigin, "/") + "/"
	}

	return c.CallbackURL
}
