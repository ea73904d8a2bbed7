package courseville

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

var (
	csrfTokenRe = regexp.MustCompile(`<input[^>]*name="_token"[^>]*value="([^"]*)"`)
	clientIDRe  = regexp.MustCompile(`https?://[^\s"']+client_id=([a-zA-Z0-9_-]{20,})`)
	authCodeRe  = regexp.MustCompile(`[?&]code=([^&]+)`)
)

// The OAuth client id is baked into the frontend's deployed JS bundle and
// only changes when the site redeploys. One fetch serves every user in a
// batch; a failed authorize drops the cache so the next attempt refetches.
var clientIDCache struct {
	mu sync.Mutex
	id string
}

// Authenticator walks the login handshake for one user: establish a cookie
// session with the user's credentials, then trade it for an API bearer
// token via the OAuth code flow. Each step that fails returns an AuthError
// naming the step, so logs show exactly where the handshake broke.
type Authenticator struct {
	session *Session
	cfg     config.CoursevilleConfig
	clock   tracker.Clock
	logger  tracker.Logger
}

// Token is the bearer pair returned by the token-exchange endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func NewAuthenticator(session *Session, cfg config.CoursevilleConfig, clock tracker.Clock, logger tracker.Logger) *Authenticator {
	return &Authenticator{session: session, cfg: cfg, clock: clock, logger: logger}
}

// Login runs the full handshake and returns the API token.
func (a *Authenticator) Login(ctx context.Context, creds tracker.Credentials) (*Token, error) {
	if err := a.establishSession(ctx, creds); err != nil {
		return nil, err
	}
	return a.grantToken(ctx)
}

// establishSession performs the cookie login: home page, login page, CSRF
// token, credential POST, verification.
func (a *Authenticator) establishSession(ctx context.Context, creds tracker.Credentials) error {
	resp, err := a.session.Get(ctx, a.cfg.BaseURL)
	if err != nil {
		return &tracker.AuthError{Step: "home", Reason: "request failed", Err: err}
	}
	if resp.StatusCode >= 400 {
		return &tracker.AuthError{Step: "home", Reason: "unexpected status",
			Err: &tracker.HTTPStatusError{URL: a.cfg.BaseURL, StatusCode: resp.StatusCode}}
	}

	loginPageURL := a.cfg.BaseURL + "/api/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"mycourseville.com"},
		"redirect_uri":  {a.cfg.BaseURL},
		"login_page":    {"itchula"},
	}.Encode()
	resp, err = a.session.Get(ctx, loginPageURL)
	if err != nil {
		return &tracker.AuthError{Step: "login-page", Reason: "request failed", Err: err}
	}
	if resp.StatusCode >= 400 {
		return &tracker.AuthError{Step: "login-page", Reason: "unexpected status",
			Err: &tracker.HTTPStatusError{URL: loginPageURL, StatusCode: resp.StatusCode}}
	}

	m := csrfTokenRe.FindSubmatch(resp.Body)
	if m == nil {
		return &tracker.AuthError{Step: "csrf-token",
			Reason: "no _token field in login page",
			Err:    &tracker.ParseError{What: "hidden _token input"}}
	}
	csrfToken := string(m[1])

	resp, err = a.session.PostForm(ctx, a.cfg.BaseURL+a.cfg.LoginPath, url.Values{
		"_token":   {csrfToken},
		"username": {creds.Username},
		"password": {creds.Password},
		"remember": {"on"},
	})
	if err != nil {
		return &tracker.AuthError{Step: "credentials", Reason: "request failed", Err: err}
	}
	if resp.StatusCode != 200 {
		return &tracker.AuthError{Step: "credentials", Reason: "login rejected",
			Err: &tracker.HTTPStatusError{URL: a.cfg.BaseURL + a.cfg.LoginPath, StatusCode: resp.StatusCode}}
	}

	return a.verifySession(ctx)
}

// verifySession confirms the cookie session is authenticated by loading the
// dashboard and checking for the current academic year, which only renders
// for logged-in users.
func (a *Authenticator) verifySession(ctx context.Context) error {
	resp, err := a.session.Get(ctx, a.cfg.BaseURL+"/")
	if err != nil {
		return &tracker.AuthError{Step: "verify", Reason: "request failed", Err: err}
	}

	marker := strconv.Itoa(a.clock.Now().Year())
	if !strings.Contains(strings.ToLower(string(resp.Body)), marker) {
		return &tracker.AuthError{Step: "verify",
			Reason: "dashboard does not look logged in (wrong credentials?)"}
	}
	return nil
}

// grantToken trades the cookie session for an API bearer token: extract
// the frontend's OAuth client id, collect an authorization code from the
// redirect, and exchange the code at the API.
func (a *Authenticator) grantToken(ctx context.Context) (*Token, error) {
	clientID, cached, err := a.clientID(ctx)
	if err != nil {
		return nil, err
	}

	code, err := a.authorize(ctx, clientID)
	if err != nil && cached {
		// The cached id may predate a frontend redeploy; refetch once.
		a.logger.Warn("authorize failed with cached client id, refetching", "error", err)
		dropClientIDCache()
		if clientID, _, err = a.clientID(ctx); err != nil {
			return nil, err
		}
		code, err = a.authorize(ctx, clientID)
	}
	if err != nil {
		return nil, err
	}

	return a.exchangeCode(ctx, code)
}

// clientID returns the OAuth client id, from cache when available. The
// second return reports whether the value came from the cache.
func (a *Authenticator) clientID(ctx context.Context) (string, bool, error) {
	clientIDCache.mu.Lock()
	defer clientIDCache.mu.Unlock()

	if clientIDCache.id != "" {
		return clientIDCache.id, true, nil
	}

	resp, err := a.session.Get(ctx, a.cfg.AppBaseURL+a.cfg.AssetPath)
	if err != nil {
		return "", false, &tracker.AuthError{Step: "client-id", Reason: "asset fetch failed", Err: err}
	}
	if resp.StatusCode != 200 {
		return "", false, &tracker.AuthError{Step: "client-id", Reason: "asset fetch failed",
			Err: &tracker.HTTPStatusError{URL: a.cfg.AppBaseURL + a.cfg.AssetPath, StatusCode: resp.StatusCode}}
	}

	m := clientIDRe.FindSubmatch(resp.Body)
	if m == nil {
		return "", false, &tracker.AuthError{Step: "client-id",
			Reason: "no client_id in frontend asset",
			Err:    &tracker.ParseError{What: "client_id in JS bundle"}}
	}

	clientIDCache.id = string(m[1])
	return clientIDCache.id, false, nil
}

func dropClientIDCache() {
	clientIDCache.mu.Lock()
	clientIDCache.id = ""
	clientIDCache.mu.Unlock()
}

// authorize requests an authorization code. The endpoint answers an
// authenticated session with a 302 whose Location carries the code.
func (a *Authenticator) authorize(ctx context.Context, clientID string) (string, error) {
	authorizeURL := a.cfg.BaseURL + "/api/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {a.cfg.AppBaseURL + "/"},
		"state":         {"/course"},
	}.Encode()

	resp, err := a.session.GetNoRedirect(ctx, authorizeURL)
	if err != nil {
		return "", &tracker.AuthError{Step: "authorize", Reason: "request failed", Err: err}
	}
	if resp.StatusCode != 302 {
		return "", &tracker.AuthError{Step: "authorize", Reason: "expected redirect",
			Err: &tracker.HTTPStatusError{URL: authorizeURL, StatusCode: resp.StatusCode}}
	}

	location := resp.Header.Get("Location")
	m := authCodeRe.FindStringSubmatch(location)
	if m == nil {
		return "", &tracker.AuthError{Step: "authorize",
			Reason: "redirect carries no code parameter",
			Err:    &tracker.ParseError{What: "code in Location header"}}
	}
	return m[1], nil
}

// exchangeCode posts the authorization code to the API's login endpoint.
func (a *Authenticator) exchangeCode(ctx context.Context, code string) (*Token, error) {
	resp, err := a.session.PostJSON(ctx, a.cfg.APIBaseURL+"/auth/login",
		map[string]string{"code": code}, "")
	if err != nil {
		return nil, &tracker.AuthError{Step: "token-exchange", Reason: "request failed", Err: err}
	}
	if resp.StatusCode != 200 {
		return nil, &tracker.AuthError{Step: "token-exchange", Reason: "code rejected",
			Err: &tracker.HTTPStatusError{URL: a.cfg.APIBaseURL + "/auth/login", StatusCode: resp.StatusCode}}
	}

	var token Token
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return nil, &tracker.AuthError{Step: "token-exchange",
			Reason: "malformed token response", Err: err}
	}
	if token.AccessToken == "" {
		return nil, &tracker.AuthError{Step: "token-exchange",
			Reason: "response carries no access token"}
	}
	return &token, nil
}
