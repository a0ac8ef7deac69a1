package fenix

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// The bridge distinguishes four failure classes so callers can tell
// "re-authenticate" from "retry on the next cycle" from "fix the input".

// AuthError means login or refresh failed: bad credentials, CSRF/state
// mismatch, missing token fields, or an unreachable identity endpoint.
// Never retried automatically; the next EnsureValid call starts over.
type AuthError struct {
	Op  string // login step or "refresh"
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "fenix auth: " + e.Op
	}
	return fmt.Sprintf("fenix auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError is a timeout, DNS failure, or connection-level error on
// an HTTP call. Transient; the coordinator's backoff policy absorbs it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fenix transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an unexpected HTTP status or malformed body on an
// otherwise reachable endpoint. Backed off like a transport error, but
// logged separately since it may indicate an API contract change.
type ProtocolError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fenix protocol: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fenix protocol: %s: unexpected status %d", e.Op, e.Status)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError rejects caller-supplied input before any network call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "fenix validation: " + e.Msg }

// transportErr wraps a round-trip failure, keeping context cancellation
// visible to callers that check for it.
func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// protocolErr reports an unexpected status for op.
func protocolErr(op string, status int) error {
	return &ProtocolError{Op: op, Status: status}
}

// IsRetryable reports whether err is in the transient class the polling
// backoff is meant for (transport or protocol failures).
func IsRetryable(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}

// isTimeout reports whether err is a deadline or net timeout, used only
// for log wording; classification does not depend on it.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
