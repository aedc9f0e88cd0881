// internal/session/session.go
// Package session owns the cookie jar and base URL of one game account and the
// HTTP client that keeps that jar in sync with the server.
package session

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is the authenticated HTTP context of one account: a cookie jar plus
// the server base URL. All methods are safe for concurrent use, but callers
// must still run one operation at a time per Session, because the remote
// server keeps its own per-session state.
type Session struct {
	id        string
	serverURL *url.URL

	mu            sync.Mutex
	cookies       map[string]string
	order         []string
	authenticated bool
}

// New creates an unauthenticated session for serverURL, which must be absolute.
func New(serverURL string) (*Session, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url must be absolute, got %q", serverURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return &Session{
		id:        uuid.New().String(),
		serverURL: u,
		cookies:   make(map[string]string),
	}, nil
}

// ID returns a random identifier used to correlate log lines.
func (s *Session) ID() string { return s.id }

// ServerURL returns a copy of the base URL.
func (s *Session) ServerURL() *url.URL {
	u := *s.serverURL
	return &u
}

// Resolve resolves ref against the server base URL. Absolute refs are returned as is.
func (s *Session) Resolve(ref string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	if parsed.IsAbs() {
		return parsed, nil
	}
	base := s.ServerURL()
	base.Path += "/"
	return base.ResolveReference(parsed), nil
}

// Authenticated reports whether the last authenticate call succeeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// MarkAuthenticated flags the session as logged in.
func (s *Session) MarkAuthenticated() {
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
}

// Reset drops every cookie and the authenticated flag.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = make(map[string]string)
	s.order = nil
	s.authenticated = false
}

// Invalidate clears the authenticated flag but keeps the captured cookies.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.authenticated = false
	s.mu.Unlock()
}

// SetCookie stores one cookie. An existing name is overwritten and moves to the
// end of the insertion order.
func (s *Session) SetCookie(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(name, value)
}

func (s *Session) setLocked(name, value string) {
	if _, exists := s.cookies[name]; exists {
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.cookies[name] = value
	s.order = append(s.order, name)
}

// MergeSetCookie merges the pairs of every Set-Cookie header value into the jar,
// last write wins. It returns the number of pairs applied.
func (s *Session) MergeSetCookie(headers ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := 0
	for _, header := range headers {
		for _, p := range ParseSetCookie(header) {
			s.setLocked(p.Name, p.Value)
			applied++
		}
	}
	return applied
}

// Cookie returns the value stored under name.
func (s *Session) Cookie(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cookies[name]
	return v, ok
}

// Cookies returns a copy of the jar.
func (s *Session) Cookies() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out
}

// Len returns the number of cookies in the jar.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies)
}

// CookieHeader serializes the jar as "k=v; k=v" in order of last update.
func (s *Session) CookieHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.order))
	for _, name := range s.order {
		parts = append(parts, name+"="+s.cookies[name])
	}
	return strings.Join(parts, "; ")
}

// ExpiresAt reads the exp claim of the JWT stored in cookieName. The token is
// not verified; it only tells the caller when the server will stop honouring it.
func (s *Session) ExpiresAt(cookieName string) (time.Time, bool) {
	raw, ok := s.Cookie(cookieName)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the JWT cookie expired before now. Sessions without
// such a cookie never report expiry.
func (s *Session) Expired(cookieName string, now time.Time) bool {
	exp, ok := s.ExpiresAt(cookieName)
	return ok && !now.Before(exp)
}
