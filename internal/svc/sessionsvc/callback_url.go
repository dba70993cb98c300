package sessionsvc

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	fragmentTokenMarker = "#session_id="
	queryTokenMarker    = "?session_id="
)

// ParseSessionID extracts the one-time session token from a callback URL.
// The fragment form (#session_id=) is checked before the query form
// (?session_id=); anything after the next '&' is ignored.
func ParseSessionID(rawURL string) (string, bool) {
	for _, marker := range []string{fragmentTokenMarker, queryTokenMarker} {
		_, rest, found := strings.Cut(rawURL, marker)
		if !found {
			continue
		}

		token, _, _ := strings.Cut(rest, "&")
		if token == "" {
			return "", false
		}

		return token, true
	}

	return "", false
}

// BuildAuthURL returns the identity provider URL with the url-encoded
// callback address in its redirect parameter.
func BuildAuthURL(providerURL, redirectURL string) (string, error) {
	u, err := url.Parse(providerURL)
	if err != nil {
		return "", fmt.Errorf("parse provider url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse provider url: %q is not absolute", providerURL) //nolint:err113
	}

	if u.Path == "" {
		u.Path = "/"
	}

	q := u.Query()
	q.Set("redirect", redirectURL)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
