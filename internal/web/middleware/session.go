package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "bioindex_session"
	defaultSessionTTL = 24 * time.Hour

	// sweepInterval is how often expired sessions are purged. Cleanup is
	// a periodic sweep, so expiry cost never lands on a request path.
	sweepInterval = 10 * time.Minute
)

// Session represents an authenticated API session
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredSession is the persisted form of a session
type StoredSession struct {
	ID        string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository optionally persists sessions across restarts
type SessionRepository interface {
	Save(ctx context.Context, id, token string, createdAt, expiresAt time.Time) error
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionManager handles session creation and validation
type SessionManager struct {
	secret   []byte
	ttl      time.Duration
	sessions map[string]*Session
	mu       sync.RWMutex
	repo     SessionRepository
	done     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a new session manager and starts the expiry
// sweep. Pass a nil repository for in-memory-only sessions.
func NewSessionManager(secret string, ttl time.Duration, repo SessionRepository) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "bioindex-dev-secret-change-in-production"
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	sm := &SessionManager{
		secret:   []byte(secret),
		ttl:      ttl,
		sessions: make(map[string]*Session),
		repo:     repo,
		done:     make(chan struct{}),
	}
	go sm.sweepLoop()
	return sm
}

// sweepLoop purges expired sessions on a fixed ticker until Stop.
func (sm *SessionManager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.sweep()
		case <-sm.done:
			return
		}
	}
}

// sweep removes every expired session from memory and storage.
func (sm *SessionManager) sweep() {
	now := time.Now()

	sm.mu.Lock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	if sm.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n, err := sm.repo.DeleteExpired(ctx); err != nil {
			log.Printf("session sweep: %v", err)
		} else if n > 0 {
			log.Printf("session sweep: removed %d expired sessions", n)
		}
	}
}

// Stop terminates the sweep goroutine.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.done) })
}

// CreateSession creates a new session
func (sm *SessionManager) CreateSession(token string) (*Session, error) {
	// Generate session ID
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	sessionID := base64.URLEncoding.EncodeToString(idBytes)

	session := &Session{
		ID:        sessionID,
		Token:     token,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(sm.ttl),
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = session
	sm.mu.Unlock()

	if sm.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sm.repo.Save(ctx, session.ID, session.Token, session.CreatedAt, session.ExpiresAt); err != nil {
			log.Printf("session persist: %v", err)
		}
	}

	return session, nil
}

// GetSession retrieves a session by ID. Expired sessions are treated as
// absent; the sweep removes them later.
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if ok {
		if time.Now().After(session.ExpiresAt) {
			return nil
		}
		return session
	}

	// Fall back to persisted sessions (survives restarts).
	if sm.repo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stored, err := sm.repo.Get(ctx, sessionID)
	if err != nil {
		log.Printf("session lookup: %v", err)
		return nil
	}
	if stored == nil {
		return nil
	}

	session = &Session{
		ID:        stored.ID,
		Token:     stored.Token,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	sm.mu.Lock()
	sm.sessions[sessionID] = session
	sm.mu.Unlock()
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			log.Printf("session delete: %v", err)
		}
	}
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	// Sign the session ID
	signature := sm.signData(session.ID)
	cookieValue := session.ID + "." + signature

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from a request
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	// Try cookie first
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		parts := strings.SplitN(cookie.Value, ".", 2)
		if len(parts) == 2 {
			sessionID := parts[0]
			signature := parts[1]
			if sm.verifySignature(sessionID, signature) {
				if session := sm.GetSession(sessionID); session != nil {
					return session
				}
			}
		}
	}

	// Try Authorization header
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		sessionID := strings.TrimPrefix(authHeader, "Bearer ")
		if session := sm.GetSession(sessionID); session != nil {
			return session
		}
	}

	return nil
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SessionData is a helper struct for JSON responses
type SessionData struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler (excludes sensitive fields)
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
