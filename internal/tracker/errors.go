package tracker

import "fmt"

// TransportError wraps a network-level failure (connect, timeout, TLS).
// Retryable by rerunning the batch; never indicates bad credentials.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError reports a response whose status code did not match what
// the current handshake or query step required.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// ParseError reports an expected HTML or JSON element that was missing
// from a remote response. Fail-fast: the remote markup has drifted.
type ParseError struct {
	What string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.What)
}

// AuthError reports a failed login handshake at a named step.
type AuthError struct {
	Step   string // "home", "login-page", "csrf-token", "credentials", "verify", "client-id", "authorize", "token-exchange"
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed at %s: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed at %s: %s", e.Step, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// QueryError reports a rejected assignment query.
// Body holds a prefix of the response body for diagnostics.
type QueryError struct {
	StatusCode int
	Body       string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("assignment query rejected with status %d: %s", e.StatusCode, e.Body)
}

// DispatchError reports a failed push to the notification channel.
type DispatchError struct {
	RecipientID string
	StatusCode  int
	Err         error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch to %s failed: %v", e.RecipientID, e.Err)
	}
	return fmt.Sprintf("dispatch to %s failed with status %d", e.RecipientID, e.StatusCode)
}

func (e *DispatchError) Unwrap() error { return e.Err }
