package fenix

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fenix_bridge/internal/logger"
	"fenix_bridge/internal/models"
)

// fakeIdentity emulates the vendor identity provider: the authorization
// redirect chain, the HTML login form and the token endpoint.
type fakeIdentity struct {
	srv *httptest.Server

	mu        sync.Mutex
	lastState string

	cachedSession bool // skip the login form, redirect straight to the app scheme

	loginPageHits  int32
	loginPosts     int32
	codeExchanges  int32
	refreshCalls   int32
	refreshStatus  int // 0 means 200
	refreshPayload string
}

func newFakeIdentity(t *testing.T) *fakeIdentity {
	t.Helper()
	f := &fakeIdentity{}
	mux := http.NewServeMux()

	mux.HandleFunc("/connect/authorize", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		f.mu.Lock()
		f.lastState = state
		cached := f.cachedSession
		f.mu.Unlock()
		if cached {
			w.Header().Set("Location", "fenix://callback#code=cached-code&id_token=idt&state="+state)
		} else {
			w.Header().Set("Location", "/Account/Login?ReturnUrl=%2Fconnect%2Fauthorize%2Fcallback")
		}
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&f.loginPageHits, 1)
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><form>
				<input name="__RequestVerificationToken" type="hidden" value="csrf-123"/>
				<input name="ReturnUrl" type="hidden" value="/connect/authorize/callback"/>
			</form></body></html>`)
			return
		}
		atomic.AddInt32(&f.loginPosts, 1)
		_ = r.ParseForm()
		if r.PostForm.Get("__RequestVerificationToken") != "csrf-123" {
			http.Error(w, "missing anti-forgery token", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("Username") != "user@example.com" || r.PostForm.Get("Password") != "hunter2" {
			// the real IdP re-renders the form; a 200 is enough to fail the flow
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Location", "/connect/authorize/callback?ready=1")
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("/connect/authorize/callback", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		state := f.lastState
		f.mu.Unlock()
		w.Header().Set("Location", "fenix://callback#code=auth-code&id_token=idt&state="+state)
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			// the code exchange authenticates the confidential client
			if id, secret, ok := r.BasicAuth(); !ok || id != "client-1" || secret != "secret-1" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"invalid_client"}`)
				return
			}
			atomic.AddInt32(&f.codeExchanges, 1)
			fmt.Fprint(w, `{"access_token":"acc-1","refresh_token":"ref-1","expires_in":3600}`)
		case "refresh_token":
			atomic.AddInt32(&f.refreshCalls, 1)
			f.mu.Lock()
			status, payload := f.refreshStatus, f.refreshPayload
			f.mu.Unlock()
			if status != 0 && status != http.StatusOK {
				w.WriteHeader(status)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			if payload == "" {
				payload = `{"access_token":"acc-2","refresh_token":"ref-2","expires_in":3600}`
			}
			fmt.Fprint(w, payload)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/connect/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"sub":"subject-1"}`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIdentity) config() Config {
	return Config{
		APIBase:         f.srv.URL,
		IdentityBase:    f.srv.URL,
		ClientID:        "client-1",
		ClientSecret:    "secret-1",
		SubscriptionKey: "sub-key",
		Username:        "user@example.com",
		Password:        "hunter2",
		Timeout:         3 * time.Second,
	}
}

// memoryStore is an in-test TokenStore.
type memoryStore struct {
	mu    sync.Mutex
	saved []models.TokenState
}

func (m *memoryStore) Save(ctx context.Context, t models.TokenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, t)
	return nil
}

func (m *memoryStore) Load(ctx context.Context) (models.TokenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return models.TokenState{}, nil
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memoryStore) last() models.TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return models.TokenState{}
	}
	return m.saved[len(m.saved)-1]
}

func testLog() *logger.Logger { return logger.Get(logger.ErrorLevel) }

func TestLogin_FullFlow(t *testing.T) {
	idp := newFakeIdentity(t)
	store := &memoryStore{}
	s := NewSession(idp.config(), testLog(), store)

	if err := s.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}

	tokens := s.Tokens()
	if tokens.AccessToken != "acc-1" || tokens.RefreshToken != "ref-1" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if tokens.SubjectID != "subject-1" {
		t.Fatalf("subject not resolved: %+v", tokens)
	}
	if tokens.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Fatalf("expiry too soon: %v", tokens.ExpiresAt)
	}
	if atomic.LoadInt32(&idp.loginPageHits) != 1 || atomic.LoadInt32(&idp.codeExchanges) != 1 {
		t.Fatalf("unexpected flow hits: page=%d exchange=%d", idp.loginPageHits, idp.codeExchanges)
	}
	if store.last().AccessToken != "acc-1" {
		t.Fatalf("tokens not persisted: %+v", store.last())
	}
}

func TestLogin_CachedSessionSkipsForm(t *testing.T) {
	idp := newFakeIdentity(t)
	idp.cachedSession = true
	s := NewSession(idp.config(), testLog(), nil)

	if err := s.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if atomic.LoadInt32(&idp.loginPageHits) != 0 || atomic.LoadInt32(&idp.loginPosts) != 0 {
		t.Fatalf("login form must be skipped: page=%d posts=%d", idp.loginPageHits, idp.loginPosts)
	}
	if s.AccessToken() != "acc-1" {
		t.Fatalf("unexpected token: %q", s.AccessToken())
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	idp := newFakeIdentity(t)
	cfg := idp.config()
	cfg.Password = "wrong"
	s := NewSession(cfg, testLog(), nil)

	err := s.EnsureValid(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if !s.Tokens().IsEmpty() {
		t.Fatalf("no token state may survive a failed login: %+v", s.Tokens())
	}
}

func TestEnsureValid_ConcurrentCallersSingleLogin(t *testing.T) {
	idp := newFakeIdentity(t)
	s := NewSession(idp.config(), testLog(), nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&idp.codeExchanges); got != 1 {
		t.Fatalf("want exactly 1 login, got %d", got)
	}
}

func TestEnsureValid_RefreshesWithinSkew(t *testing.T) {
	idp := newFakeIdentity(t)
	store := &memoryStore{}
	s := NewSession(idp.config(), testLog(), store)

	now := time.Now()
	s.Restore(models.TokenState{
		AccessToken:  "old-acc",
		RefreshToken: "old-ref",
		ExpiresAt:    now.Add(30 * time.Second), // inside the 60s skew
		SubjectID:    "subject-1",
	})

	if err := s.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if atomic.LoadInt32(&idp.refreshCalls) != 1 {
		t.Fatalf("want a refresh, got %d calls", idp.refreshCalls)
	}
	if s.AccessToken() != "acc-2" {
		t.Fatalf("token not rotated: %q", s.AccessToken())
	}
	if store.last().AccessToken != "acc-2" {
		t.Fatalf("rotated tokens not persisted: %+v", store.last())
	}
}

func TestEnsureValid_FreshTokenNoNetwork(t *testing.T) {
	idp := newFakeIdentity(t)
	s := NewSession(idp.config(), testLog(), nil)

	s.Restore(models.TokenState{
		AccessToken:  "fresh",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	if err := s.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if idp.refreshCalls != 0 || idp.codeExchanges != 0 {
		t.Fatalf("no network calls expected: refresh=%d exchange=%d", idp.refreshCalls, idp.codeExchanges)
	}
}

func TestRefresh_RejectedClearsTokensThenRelogins(t *testing.T) {
	idp := newFakeIdentity(t)
	idp.refreshStatus = http.StatusBadRequest
	store := &memoryStore{}
	s := NewSession(idp.config(), testLog(), store)

	s.Restore(models.TokenState{
		AccessToken:  "old-acc",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})

	err := s.EnsureValid(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if !s.Tokens().IsEmpty() {
		t.Fatalf("rejected refresh must clear tokens: %+v", s.Tokens())
	}
	if !store.last().IsEmpty() {
		t.Fatalf("cleared state must be persisted: %+v", store.last())
	}

	// next attempt starts a full login instead of retrying the refresh
	if err := s.EnsureValid(context.Background()); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if atomic.LoadInt32(&idp.refreshCalls) != 1 {
		t.Fatalf("refresh must not be retried, got %d calls", idp.refreshCalls)
	}
	if atomic.LoadInt32(&idp.codeExchanges) != 1 {
		t.Fatalf("want one full login, got %d", idp.codeExchanges)
	}
}

func TestRefresh_TransportErrorKeepsRefreshToken(t *testing.T) {
	idp := newFakeIdentity(t)
	cfg := idp.config()
	idp.srv.Close() // unreachable identity host
	s := NewSession(cfg, testLog(), nil)

	s.Restore(models.TokenState{
		AccessToken:  "old-acc",
		RefreshToken: "still-good",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})

	err := s.EnsureValid(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if s.Tokens().RefreshToken != "still-good" {
		t.Fatalf("transport failure must not discard the refresh token: %+v", s.Tokens())
	}
}

func TestParseCallback_StateMismatch(t *testing.T) {
	s := NewSession(Config{}, testLog(), nil)

	cb, _ := url.Parse("fenix://callback#code=c&id_token=i&state=other")
	_, err := s.parseCallback(cb, "expected")
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("want AuthError, got %v", err)
	}

	// state is checked before the presence of code/id_token
	cb, _ = url.Parse("fenix://callback#state=other")
	if _, err := s.parseCallback(cb, "expected"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseCallback_MissingCode(t *testing.T) {
	s := NewSession(Config{}, testLog(), nil)

	cb, _ := url.Parse("fenix://callback#id_token=i&state=st")
	if _, err := s.parseCallback(cb, "st"); err == nil {
		t.Fatalf("expected error for missing code")
	}
}

func TestPkceChallenge(t *testing.T) {
	ch, err := newPkceChallenge()
	if err != nil {
		t.Fatalf("newPkceChallenge: %v", err)
	}
	if len(ch.Verifier) != 128 {
		t.Fatalf("verifier length %d, want 128", len(ch.Verifier))
	}
	sum := sha256.Sum256([]byte(ch.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if ch.Challenge != want {
		t.Fatalf("challenge is not S256 of verifier")
	}
	if ch.State == "" || ch.Nonce == "" || ch.State == ch.Nonce {
		t.Fatalf("state/nonce not independently random: %+v", ch)
	}

	other, _ := newPkceChallenge()
	if other.Verifier == ch.Verifier {
		t.Fatalf("verifiers must be unique per attempt")
	}
}
