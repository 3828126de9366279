// Package credentials builds the session cookie used to authenticate enumeration requests.
package credentials

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/config"
)

// ErrInvalidCharacters is returned when the cookie cannot be carried in an HTTP header value.
var ErrInvalidCharacters = errors.New("session information contains invalid characters")

// SessionCookie is a logged-in user's cookie pair.
type SessionCookie struct {
	Name  string
	Value string
}

// FromConfig returns nil when no session was configured. A half-configured session is an error.
func FromConfig(cfg config.SessionConfig) (*SessionCookie, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.CookieName == "" || cfg.ID == "" {
		return nil, config.ErrIncompleteSession
	}

	cookie := &SessionCookie{Name: cfg.CookieName, Value: cfg.ID}
	if _, err := cookie.HeaderValue(); err != nil {
		return nil, err
	}
	return cookie, nil
}

// HeaderValue renders the cookie as "name=value" without quoting or escaping.
func (c *SessionCookie) HeaderValue() (string, error) {
	value := fmt.Sprintf("%s=%s", c.Name, c.Value)
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", ErrInvalidCharacters
	}
	return value, nil
}

// Headers returns the default headers carrying the cookie. A nil cookie yields an empty set.
func (c *SessionCookie) Headers() (http.Header, error) {
	headers := http.Header{}
	if c == nil {
		return headers, nil
	}

	value, err := c.HeaderValue()
	if err != nil {
		return nil, err
	}
	headers.Set("Cookie", value)
	return headers, nil
}
