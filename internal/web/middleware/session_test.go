package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	sm := NewSessionManager("test-secret", time.Hour, nil)
	t.Cleanup(sm.Stop)
	return sm
}

func TestSessionManagerCreateAndGet(t *testing.T) {
	sm := newTestManager(t)

	session, err := sm.CreateSession("token123")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.Token != "token123" {
		t.Errorf("Token = %s, want token123", session.Token)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}

	retrieved := sm.GetSession(session.ID)
	if retrieved == nil {
		t.Fatal("GetSession() returned nil for existing session")
	}
	if retrieved.Token != "token123" {
		t.Errorf("Token = %s, want token123", retrieved.Token)
	}

	if sm.GetSession("nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}
}

func TestSessionManagerDelete(t *testing.T) {
	sm := newTestManager(t)

	session, _ := sm.CreateSession("token123")
	sm.DeleteSession(session.ID)

	if sm.GetSession(session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
}

func TestExpiredSessionIsInvisible(t *testing.T) {
	sm := newTestManager(t)

	session, _ := sm.CreateSession("token123")

	// Force the session into the past.
	sm.mu.Lock()
	sm.sessions[session.ID].ExpiresAt = time.Now().Add(-time.Minute)
	sm.mu.Unlock()

	if sm.GetSession(session.ID) != nil {
		t.Error("expired session must be treated as absent")
	}

	// Expired sessions stay in the map until the sweep runs; validation
	// alone never mutates state.
	sm.mu.RLock()
	_, stillThere := sm.sessions[session.ID]
	sm.mu.RUnlock()
	if !stillThere {
		t.Error("lookup should not remove the session, that is the sweep's job")
	}
}

func TestSweepPurgesExpired(t *testing.T) {
	sm := newTestManager(t)

	expired, _ := sm.CreateSession("old")
	live, _ := sm.CreateSession("new")

	sm.mu.Lock()
	sm.sessions[expired.ID].ExpiresAt = time.Now().Add(-time.Minute)
	sm.mu.Unlock()

	sm.sweep()

	sm.mu.RLock()
	_, hasExpired := sm.sessions[expired.ID]
	_, hasLive := sm.sessions[live.ID]
	sm.mu.RUnlock()

	if hasExpired {
		t.Error("sweep left an expired session behind")
	}
	if !hasLive {
		t.Error("sweep removed a live session")
	}
}

// fakeSessionRepo is an in-memory SessionRepository for tests.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*StoredSession
	swept    int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*StoredSession)}
}

func (f *fakeSessionRepo) Save(ctx context.Context, id, token string, createdAt, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = &StoredSession{ID: id, Token: token, CreatedAt: createdAt, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeSessionRepo) Get(ctx context.Context, sessionID string) (*StoredSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return s, nil
}

func (f *fakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swept++
	var n int64
	now := time.Now()
	for id, s := range f.sessions {
		if now.After(s.ExpiresAt) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func TestSessionSurvivesRestartViaRepository(t *testing.T) {
	repo := newFakeSessionRepo()

	sm := NewSessionManager("test-secret", time.Hour, repo)
	session, err := sm.CreateSession("token123")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	sm.Stop()

	// A fresh manager with the same repository sees the session.
	sm2 := NewSessionManager("test-secret", time.Hour, repo)
	defer sm2.Stop()

	retrieved := sm2.GetSession(session.ID)
	if retrieved == nil {
		t.Fatal("session should be recoverable from the repository")
	}
	if retrieved.Token != "token123" {
		t.Errorf("Token = %s, want token123", retrieved.Token)
	}
}

func TestSweepHitsRepository(t *testing.T) {
	repo := newFakeSessionRepo()
	sm := NewSessionManager("test-secret", time.Hour, repo)
	defer sm.Stop()

	sm.sweep()

	repo.mu.Lock()
	swept := repo.swept
	repo.mu.Unlock()
	if swept != 1 {
		t.Errorf("expected 1 repository sweep, got %d", swept)
	}
}

func TestSetAndGetSessionCookie(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession("token123")

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, session)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
			break
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not found")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil {
		t.Fatal("GetSessionFromRequest() returned nil")
	}
	if retrieved.ID != session.ID {
		t.Errorf("Session ID = %s, want %s", retrieved.ID, session.ID)
	}
}

func TestInvalidCookieSignature(t *testing.T) {
	sm := newTestManager(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  sessionCookieName,
		Value: "invalid-session.invalid-signature",
	})

	if sm.GetSessionFromRequest(req) != nil {
		t.Error("GetSessionFromRequest() should return nil for invalid signature")
	}
}

func TestBearerAuth(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession("token123")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil {
		t.Fatal("GetSessionFromRequest() returned nil for Bearer auth")
	}
	if retrieved.ID != session.ID {
		t.Errorf("Session ID = %s, want %s", retrieved.ID, session.ID)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession("token123")

	handlerCalled := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	protectedHandler := RequireAuth(sm)(testHandler)

	t.Run("valid session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)

		protectedHandler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if !handlerCalled {
			t.Error("handler was not called")
		}
	})

	t.Run("no session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/protected", nil)

		protectedHandler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if handlerCalled {
			t.Error("handler should not be called for unauthorized request")
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("rejection body is not JSON: %v", err)
		}
		if body["error"] != "unauthorized" {
			t.Errorf(`error = %q, want "unauthorized"`, body["error"])
		}
	})
}

func TestClearSessionCookie(t *testing.T) {
	sm := newTestManager(t)

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
			break
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not found")
	}
	if cookie.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", cookie.MaxAge)
	}
}

func TestSessionMarshalHidesToken(t *testing.T) {
	session := &Session{
		ID:        "test123",
		Token:     "secret-token",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	data, err := session.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	jsonStr := string(data)
	if strings.Contains(jsonStr, "secret-token") {
		t.Error("JSON should not contain the token")
	}
	if !strings.Contains(jsonStr, "test123") {
		t.Error("JSON should contain session_id")
	}
}
