package fenix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"fenix_bridge/internal/logger"
	"fenix_bridge/internal/models"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"
)

// tokenSkew is the safety margin before expiry at which a refresh is
// triggered instead of using the current access token.
const tokenSkew = 60 * time.Second

const defaultExpiresIn = 3600 // seconds, when the token response omits expires_in

// TokenStore persists token state across restarts. Save and Load are best
// effort; the session works without a store.
type TokenStore interface {
	Save(ctx context.Context, t models.TokenState) error
	Load(ctx context.Context) (models.TokenState, error)
}

// Session owns the OAuth2 token state for one Fenix account and hides the
// login/refresh mechanics behind EnsureValid. Safe for concurrent use:
// at most one login or refresh is in flight at any time, concurrent
// callers join it.
type Session struct {
	cfg   Config
	http  *http.Client
	log   *logger.Logger
	store TokenStore

	now func() time.Time // injected in tests

	mu     sync.Mutex
	tokens models.TokenState

	group singleflight.Group
}

// NewSession builds a session for the given account. store may be nil.
func NewSession(cfg Config, log *logger.Logger, store TokenStore) *Session {
	cfg = cfg.withDefaults()
	// The identity provider sets anti-forgery cookies on the login page
	// and expects them back with the credential POST.
	jar, _ := cookiejar.New(nil)
	return &Session{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			// The login flow inspects Location headers itself.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:   log,
		store: store,
		now:   time.Now,
	}
}

// Restore seeds the session with previously persisted tokens.
func (s *Session) Restore(t models.TokenState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

// Tokens returns a copy of the current token state.
func (s *Session) Tokens() models.TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// AccessToken returns the current bearer token ("" before first login).
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.AccessToken
}

// SubjectID returns the cached identity claim, resolving it via a
// user-info call if this session has not needed it before.
func (s *Session) SubjectID(ctx context.Context) (string, error) {
	if err := s.EnsureValid(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	sub := s.tokens.SubjectID
	s.mu.Unlock()
	if sub != "" {
		return sub, nil
	}
	sub, err := s.fetchSubject(ctx, s.AccessToken())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens.SubjectID = sub
	t := s.tokens
	s.mu.Unlock()
	s.persist(ctx, t)
	return sub, nil
}

// EnsureValid guarantees a usable access token on return. It performs a
// full login when no tokens exist, a refresh when within skew of expiry,
// and returns immediately otherwise. Concurrent callers collapse onto a
// single in-flight attempt and all observe its result.
func (s *Session) EnsureValid(ctx context.Context) error {
	if s.currentOK() {
		return nil
	}
	_, err, _ := s.group.Do("ensure", func() (any, error) {
		// Re-check: a joined caller may arrive after the winner finished.
		if s.currentOK() {
			return nil, nil
		}
		s.mu.Lock()
		empty := s.tokens.IsEmpty()
		s.mu.Unlock()
		if empty {
			return nil, s.login(ctx)
		}
		return nil, s.refresh(ctx)
	})
	return err
}

// currentOK reports whether the stored token is present and outside the
// refresh skew window.
func (s *Session) currentOK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.tokens.IsEmpty() && !s.tokens.NeedsRefresh(s.now(), tokenSkew)
}

// clearTokens destroys the token state so the next EnsureValid performs a
// full login rather than another refresh attempt.
func (s *Session) clearTokens(ctx context.Context) {
	s.mu.Lock()
	s.tokens = models.TokenState{}
	s.mu.Unlock()
	s.persist(ctx, models.TokenState{})
}

func (s *Session) persist(ctx context.Context, t models.TokenState) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, t); err != nil {
		s.log.Infow("token_persist_failed", "err", err)
	}
}

// ---- refresh flow ----

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.tokens.RefreshToken
	s.mu.Unlock()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.cfg.ClientID},
	}
	resp, err := s.postForm(ctx, s.cfg.IdentityBase+"/connect/token", form, nil)
	if err != nil {
		// Transport-level failure: the refresh token may still be good,
		// keep it and let the caller retry later.
		return &AuthError{Op: "refresh", Err: err}
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		s.log.Errorw("token_refresh_rejected", "status", resp.StatusCode)
		s.clearTokens(ctx)
		return &AuthError{Op: "refresh", Err: protocolErr("token refresh", resp.StatusCode)}
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		s.clearTokens(ctx)
		return &AuthError{Op: "refresh", Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		s.clearTokens(ctx)
		return &AuthError{Op: "refresh", Err: fmt.Errorf("no access_token in response")}
	}

	s.mu.Lock()
	s.tokens.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		s.tokens.RefreshToken = tr.RefreshToken
	}
	s.tokens.ExpiresAt = s.now().Add(expiresIn(tr.ExpiresIn))
	t := s.tokens
	s.mu.Unlock()
	s.persist(ctx, t)
	s.log.Debugw("access_token_refreshed", "expires_at", t.ExpiresAt)
	return nil
}

func expiresIn(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = defaultExpiresIn
	}
	return time.Duration(seconds) * time.Second
}

// ---- full login flow ----

// login emulates the vendor's browser login: authorization request, login
// page scrape, credential submission, redirect capture, code exchange and
// a user-info call for the identity claim. Any failed step aborts the
// whole attempt; no partial token state survives.
func (s *Session) login(ctx context.Context) error {
	ch, err := newPkceChallenge()
	if err != nil {
		return &AuthError{Op: "pkce", Err: err}
	}

	callbackURL, err := s.authorize(ctx, ch)
	if err != nil {
		return err
	}

	code, err := s.parseCallback(callbackURL, ch.State)
	if err != nil {
		return err
	}

	tr, err := s.exchangeCode(ctx, code, ch.Verifier)
	if err != nil {
		return err
	}

	sub, err := s.fetchSubject(ctx, tr.AccessToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tokens = models.TokenState{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    s.now().Add(expiresIn(tr.ExpiresIn)),
		SubjectID:    sub,
	}
	t := s.tokens
	s.mu.Unlock()
	s.persist(ctx, t)
	s.log.Infow("login_succeeded", "subject", sub, "expires_at", t.ExpiresAt)
	return nil
}

// authorize runs the redirect dance up to the OAuth callback URL: the
// authorization request, the login page and the credential POST. When the
// identity provider still holds a session cookie it may redirect straight
// back to the app scheme, in which case the form steps are skipped.
func (s *Session) authorize(ctx context.Context, ch *PkceChallenge) (*url.URL, error) {
	authorizeURL := s.cfg.IdentityBase + "/connect/authorize?" + url.Values{
		"client_id":             {s.cfg.ClientID},
		"response_type":         {"code id_token"},
		"scope":                 {s.cfg.Scopes},
		"redirect_uri":          {s.cfg.RedirectURI},
		"nonce":                 {ch.Nonce},
		"code_challenge":        {ch.Challenge},
		"code_challenge_method": {"S256"},
		"state":                 {ch.State},
		"oemclient":             {"fenix"},
	}.Encode()

	loc, err := s.expectRedirect(ctx, authorizeURL, "authorization request")
	if err != nil {
		return nil, &AuthError{Op: "authorize", Err: err}
	}
	if loc.Scheme == RedirectScheme {
		// Cached identity session: no login form was presented.
		s.log.Debugw("login_fast_path", "location", loc.Redacted())
		return loc, nil
	}

	loginPageURL := s.resolveIdentity(loc)
	csrfToken, returnURL, err := s.scrapeLoginForm(ctx, loginPageURL)
	if err != nil {
		return nil, err
	}

	callbackLoc, err := s.submitCredentials(ctx, loginPageURL, csrfToken, returnURL)
	if err != nil {
		return nil, err
	}
	if callbackLoc.Scheme == RedirectScheme {
		return callbackLoc, nil
	}

	// One more hop: the /connect/authorize/callback URL redirects to the
	// app scheme carrying the fragment.
	finalLoc, err := s.expectRedirect(ctx, s.resolveIdentity(callbackLoc), "callback")
	if err != nil {
		return nil, &AuthError{Op: "callback", Err: err}
	}
	return finalLoc, nil
}

// scrapeLoginForm fetches the login page and pulls the anti-forgery token
// and the hidden return URL out of its HTML form.
func (s *Session) scrapeLoginForm(ctx context.Context, pageURL string) (csrf, returnURL string, err error) {
	resp, err := s.get(ctx, pageURL, nil)
	if err != nil {
		return "", "", &AuthError{Op: "login page", Err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", "", &AuthError{Op: "login page", Err: protocolErr("login page", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", &AuthError{Op: "login page", Err: fmt.Errorf("parse html: %w", err)}
	}
	csrf, _ = doc.Find(`input[name="__RequestVerificationToken"]`).First().Attr("value")
	returnURL, _ = doc.Find(`input[name="ReturnUrl"]`).First().Attr("value")
	if csrf == "" {
		return "", "", &AuthError{Op: "login page", Err: fmt.Errorf("no anti-forgery token in login form")}
	}
	return csrf, returnURL, nil
}

// submitCredentials posts the login form and returns the redirect target.
func (s *Session) submitCredentials(ctx context.Context, pageURL, csrf, returnURL string) (*url.URL, error) {
	form := url.Values{
		"ReturnUrl":                  {returnURL},
		"Username":                   {s.cfg.Username},
		"Password":                   {s.cfg.Password},
		"button":                     {"login"},
		"__RequestVerificationToken": {csrf},
	}
	resp, err := s.postForm(ctx, pageURL, form, nil)
	if err != nil {
		return nil, &AuthError{Op: "credential submit", Err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusFound {
		return nil, &AuthError{Op: "credential submit", Err: protocolErr("login form", resp.StatusCode)}
	}
	loc, err := resp.Location()
	if err != nil {
		return nil, &AuthError{Op: "credential submit", Err: fmt.Errorf("no Location header")}
	}
	return loc, nil
}

// parseCallback validates the final fenix:// redirect and extracts the
// authorization code. code, id_token and state all live in the fragment.
func (s *Session) parseCallback(callback *url.URL, wantState string) (string, error) {
	frag, err := url.ParseQuery(callback.Fragment)
	if err != nil {
		return "", &AuthError{Op: "callback", Err: fmt.Errorf("parse fragment: %w", err)}
	}
	code := frag.Get("code")
	idToken := frag.Get("id_token")
	state := frag.Get("state")
	if state != wantState {
		return "", &AuthError{Op: "callback", Err: fmt.Errorf("state mismatch")}
	}
	if code == "" || idToken == "" {
		return "", &AuthError{Op: "callback", Err: fmt.Errorf("authorization code or id_token missing")}
	}
	return code, nil
}

// exchangeCode trades the authorization code plus PKCE verifier for tokens.
func (s *Session) exchangeCode(ctx context.Context, code, verifier string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {s.cfg.RedirectURI},
		"code_verifier": {verifier},
	}
	headers := map[string]string{
		"ocp-apim-subscription-key": s.cfg.SubscriptionKey,
	}
	resp, err := s.postFormBasic(ctx, s.cfg.IdentityBase+"/connect/token", form, headers)
	if err != nil {
		return nil, &AuthError{Op: "token exchange", Err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Op: "token exchange", Err: protocolErr("token exchange", resp.StatusCode)}
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &AuthError{Op: "token exchange", Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, &AuthError{Op: "token exchange", Err: fmt.Errorf("access or refresh token missing in response")}
	}
	return &tr, nil
}

// fetchSubject resolves the identity claim with a user-info call.
func (s *Session) fetchSubject(ctx context.Context, accessToken string) (string, error) {
	resp, err := s.get(ctx, s.cfg.IdentityBase+"/connect/userinfo", map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return "", &AuthError{Op: "userinfo", Err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Op: "userinfo", Err: protocolErr("userinfo", resp.StatusCode)}
	}
	var info struct {
		Sub string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", &AuthError{Op: "userinfo", Err: fmt.Errorf("decode userinfo: %w", err)}
	}
	if info.Sub == "" {
		return "", &AuthError{Op: "userinfo", Err: fmt.Errorf("no sub claim in userinfo response")}
	}
	return info.Sub, nil
}

// ---- HTTP plumbing ----

// expectRedirect GETs url without following redirects and returns the
// parsed Location header, failing unless the response is a 302.
func (s *Session) expectRedirect(ctx context.Context, rawURL, op string) (*url.URL, error) {
	resp, err := s.get(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusFound {
		return nil, protocolErr(op, resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("%s: redirect without Location header", op)
	}
	u, err := url.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("%s: parse Location: %w", op, err)
	}
	return u, nil
}

// resolveIdentity makes a possibly relative redirect target absolute
// against the identity host.
func (s *Session) resolveIdentity(u *url.URL) string {
	if u.IsAbs() {
		return u.String()
	}
	base, err := url.Parse(s.cfg.IdentityBase)
	if err != nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func (s *Session) get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	return s.do(ctx, http.MethodGet, rawURL, "", nil, headers)
}

func (s *Session) postForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*http.Response, error) {
	return s.do(ctx, http.MethodPost, rawURL, form.Encode(), nil, headers)
}

// postFormBasic posts a form with HTTP basic auth for the OAuth client.
func (s *Session) postFormBasic(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*http.Response, error) {
	return s.do(ctx, http.MethodPost, rawURL, form.Encode(), func(req *http.Request) {
		req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	}, headers)
}

func (s *Session) do(ctx context.Context, method, rawURL, body string, mutate func(*http.Request), headers map[string]string) (*http.Response, error) {
	// s.http.Timeout bounds the whole call including the body read, so no
	// per-request deadline is layered on top of ctx here.
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if mutate != nil {
		mutate(req)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			s.log.Errorw("identity_request_timed_out", "url", rawURL)
		}
		return nil, transportErr(method+" "+rawURL, err)
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
