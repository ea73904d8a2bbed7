// Package courseville implements the remote-service client: the cookie
// and OAuth-code login handshake and the assignment query API.
package courseville

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"cvn-go/internal/tracker"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"

// Response is a fully-read HTTP response. The body is small for every
// endpoint the handshake touches, so buffering it keeps the callers simple.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Session holds the cookie state for one login handshake. Two HTTP clients
// share a single cookie jar: the default one follows redirects, the other
// surfaces 302 responses so the authorize step can read the Location header.
// A Session belongs to exactly one user and one handshake; it is not safe
// for concurrent use.
type Session struct {
	client     *http.Client
	noRedirect *http.Client
}

// NewSession creates a session with a fresh cookie jar.
func NewSession(timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	return &Session{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		noRedirect: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// browserHeaders makes the session look like the site's own frontend.
// Accept-Encoding is pinned to identity so bodies arrive uncompressed and
// the token and client-id regexps see plain text.
func browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("has_js", "1")
	req.Header.Set("Connection", "keep-alive")
}

func (s *Session) do(client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &tracker.TransportError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tracker.TransportError{URL: req.URL.String(), Err: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET following redirects.
func (s *Session) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	browserHeaders(req)
	return s.do(s.client, req)
}

// GetNoRedirect performs a GET and returns redirect responses as-is.
func (s *Session) GetNoRedirect(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	browserHeaders(req)
	return s.do(s.noRedirect, req)
}

// PostForm performs a form-encoded POST following redirects.
func (s *Session) PostForm(ctx context.Context, rawURL string, data url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	browserHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(s.client, req)
}

// PostJSON performs a JSON POST. When bearer is non-empty it is sent as
// the Authorization token.
func (s *Session) PostJSON(ctx context.Context, rawURL string, payload any, bearer string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload for %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	browserHeaders(req)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return s.do(s.client, req)
}
