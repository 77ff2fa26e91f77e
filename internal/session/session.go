// Package session keeps per-browser dashboard state in memory: the last
// loaded snapshot and the chat history. Nothing here is shared between
// sessions or written to disk.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Shadansa24/Inventory-app/internal/inventory"
)

const (
	CookieName = "inventory_session"

	// MaxHistory is how many chat turns a session keeps; older turns are dropped.
	MaxHistory = 50

	// MaxSessions bounds the live sessions. Creating one more evicts the
	// session idle the longest.
	MaxSessions = 10000
)

// ChatTurn is one question and its outcome.
type ChatTurn struct {
	Question string
	Context  string
	Response string
	Err      string
	AskedAt  time.Time
	Duration time.Duration
}

type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
	snapshot *inventory.Snapshot
	history  []ChatTurn
	flash    string
	inFlight bool
	limiter  *rate.Limiter
}

// Snapshot returns the snapshot from the most recent successful load.
func (s *Session) Snapshot() *inventory.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) SetSnapshot(snap *inventory.Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// History returns a copy of the chat turns, oldest first.
func (s *Session) History() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatTurn(nil), s.history...)
}

func (s *Session) AddTurn(turn ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = append([]ChatTurn(nil), s.history[over:]...)
	}
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// SetFlash stores a one-time notice shown on the next page render.
func (s *Session) SetFlash(msg string) {
	s.mu.Lock()
	s.flash = msg
	s.mu.Unlock()
}

// TakeFlash returns and clears the pending notice.
func (s *Session) TakeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

// BeginChat claims the session's single chat slot. ok is false while another
// chat call is in flight; otherwise done must be called to release the slot.
func (s *Session) BeginChat() (done func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return nil, false
	}
	s.inFlight = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.inFlight = false
			s.mu.Unlock()
		})
	}, true
}

// Allow reports whether the session may send another chat request now.
func (s *Session) Allow() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Manager owns all live sessions.
type Manager struct {
	ttl           time.Duration
	ratePerMinute int
	maxSessions   int
	secure        bool

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions expire after ttl of inactivity
// and may send ratePerMinute chat requests per minute (0 disables the limit).
func NewManager(ttl time.Duration, ratePerMinute int) *Manager {
	return &Manager{
		ttl:           ttl,
		ratePerMinute: ratePerMinute,
		maxSessions:   MaxSessions,
		sessions:      make(map[string]*Session),
	}
}

// SetSecureCookie marks the session cookie Secure, for deployments behind TLS.
func (m *Manager) SetSecureCookie(secure bool) { m.secure = secure }

func (m *Manager) Create() *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		lastSeen:  now,
	}
	if m.ratePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.ratePerMinute)), m.ratePerMinute)
	}

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.evictIdlest()
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// evictIdlest drops the session idle the longest, skipping any with a chat
// call in flight; m.mu must be held.
func (m *Manager) evictIdlest() {
	var (
		victim string
		oldest time.Time
	)
	for id, s := range m.sessions {
		if s.busy() {
			continue
		}
		if seen := s.idleSince(); victim == "" || seen.Before(oldest) {
			victim, oldest = id, seen
		}
	}
	if victim != "" {
		delete(m.sessions, victim)
	}
}

// Get returns a live session. Expired sessions are treated as missing.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && time.Since(s.idleSince()) > m.ttl {
		return nil, false
	}
	return s, true
}

// Touch records activity on a session.
func (m *Manager) Touch(s *Session) {
	s.touch(time.Now())
}

// FromRequest returns the request's session, creating one and setting the
// cookie when the request has none or it has expired.
func (m *Manager) FromRequest(w http.ResponseWriter, r *http.Request) *Session {
	if c, err := r.Cookie(CookieName); err == nil {
		if s, ok := m.Get(c.Value); ok {
			m.Touch(s)
			return s
		}
	}

	s := m.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// Expire removes sessions idle longer than the TTL and returns how many were
// removed. Sessions with a chat call in flight are kept.
func (m *Manager) Expire(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.ttl && !s.busy() {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
