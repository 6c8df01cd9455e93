package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"

	"github.com/campioncollege/beadle-core/internal/infrastructure/config"
)

const (
	defaultCookieName = "ebs_session"
	minHashKeyLength  = 32
	secondsPerHour    = 3600
)

// sessionCookie carries the session token in a signed, and when a block
// key is configured encrypted, browser cookie.
type sessionCookie struct {
	codec  *securecookie.SecureCookie
	name   string
	secure bool
	maxAge int
}

func newSessionCookie(cfg config.SessionConfig) (*sessionCookie, error) {
	if len(cfg.HashKey) < minHashKeyLength {
		return nil, fmt.Errorf("session hash key must be at least %d bytes", minHashKeyLength)
	}
	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey = []byte(cfg.BlockKey)
	}

	maxAge := cfg.TTLHours * secondsPerHour
	codec := securecookie.New([]byte(cfg.HashKey), blockKey)
	// Zero disables the codec's own timestamp check, matching sessions
	// that never expire.
	codec.MaxAge(maxAge)

	name := cfg.CookieName
	if name == "" {
		name = defaultCookieName
	}
	return &sessionCookie{codec: codec, name: name, secure: cfg.SecureCookie, maxAge: maxAge}, nil
}

// set writes the cookie for token.
func (c *sessionCookie) set(w http.ResponseWriter, token string) error {
	encoded, err := c.codec.Encode(c.name, token)
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   c.maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// clear tells the browser to drop the cookie.
func (c *sessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// token returns the session token from the cookie, or "" when the cookie
// is absent or fails verification.
func (c *sessionCookie) token(r *http.Request) string {
	ck, err := r.Cookie(c.name)
	if err != nil {
		return ""
	}
	var token string
	if err := c.codec.Decode(c.name, ck.Value, &token); err != nil {
		return ""
	}
	return token
}

// tokenFromRequest reads the session token from the Authorization header,
// falling back to the session cookie.
func (s *Server) tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return s.cookie.token(r)
}
