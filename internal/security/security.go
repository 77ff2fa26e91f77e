// internal/security/security.go
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

const (
	DefaultCSRFTokenTTL = time.Hour

	// MaxTokensPerSession bounds the outstanding tokens of one session; the
	// oldest is dropped first. Each page render issues one token.
	MaxTokensPerSession = 8
	// MaxTokens bounds the whole store so that cookieless clients cannot grow
	// it without limit between cleanups.
	MaxTokens = 50000

	// CSRFFormField and CSRFHeader carry the token on form posts and API calls.
	CSRFFormField = "csrf_token"
	CSRFHeader    = "X-CSRF-Token"
)

type csrfEntry struct {
	sessionID string
	expires   time.Time
}

// CSRF issues single-use tokens bound to a session.
type CSRF struct {
	ttl        time.Duration
	perSession int
	max        int

	mu        sync.Mutex
	tokens    map[string]csrfEntry
	bySession map[string][]string
}

func NewCSRF(ttl time.Duration) *CSRF {
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	return &CSRF{
		ttl:        ttl,
		perSession: MaxTokensPerSession,
		max:        MaxTokens,
		tokens:     make(map[string]csrfEntry),
		bySession:  make(map[string][]string),
	}
}

// Generate issues a new token for sessionID.
func (c *CSRF) Generate(sessionID string) string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// can't securely continue if randomness fails
		panic("Failed to generate CSRF token: " + err.Error())
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tokens) >= c.max {
		c.evictSoonestExpiring()
	}
	c.tokens[token] = csrfEntry{sessionID: sessionID, expires: time.Now().Add(c.ttl)}
	issued := append(c.bySession[sessionID], token)
	for len(issued) > c.perSession {
		delete(c.tokens, issued[0])
		issued = issued[1:]
	}
	c.bySession[sessionID] = issued
	return token
}

// evictSoonestExpiring drops one token; c.mu must be held.
func (c *CSRF) evictSoonestExpiring() {
	var (
		victim string
		entry  csrfEntry
	)
	for token, e := range c.tokens {
		if victim == "" || e.expires.Before(entry.expires) {
			victim, entry = token, e
		}
	}
	if victim != "" {
		c.forget(victim, entry.sessionID)
	}
}

// forget removes token from both indexes; c.mu must be held.
func (c *CSRF) forget(token, sessionID string) {
	delete(c.tokens, token)
	issued := c.bySession[sessionID]
	for i, t := range issued {
		if t == token {
			issued = append(issued[:i:i], issued[i+1:]...)
			break
		}
	}
	if len(issued) == 0 {
		delete(c.bySession, sessionID)
	} else {
		c.bySession[sessionID] = issued
	}
}

// Validate consumes token and reports whether it was issued to sessionID and
// has not expired.
func (c *CSRF) Validate(sessionID, token string) bool {
	if token == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tokens[token]
	if !ok {
		return false
	}
	c.forget(token, entry.sessionID)
	if time.Now().After(entry.expires) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(entry.sessionID), []byte(sessionID)) == 1
}

// TokenFromRequest returns the token from the header or, failing that, the form.
func TokenFromRequest(r *http.Request) string {
	if t := r.Header.Get(CSRFHeader); t != "" {
		return t
	}
	return r.PostFormValue(CSRFFormField)
}

// CleanExpired drops expired tokens and returns how many were removed.
func (c *CSRF) CleanExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, entry := range c.tokens {
		if now.After(entry.expires) {
			c.forget(token, entry.sessionID)
			removed++
		}
	}
	if removed > 0 {
		logger.LogDebug("CSRF token cleanup removed %d tokens", removed)
	}
	return removed
}

// Len returns the number of outstanding tokens.
func (c *CSRF) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// AddSecurityHeaders sets browser hardening headers on every response.
func AddSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:")
		next.ServeHTTP(w, r)
	})
}
