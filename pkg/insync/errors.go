package insync

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrAuthorizationRequired is returned when no refresh token is stored
	// for this device. The caller must complete the interactive
	// authorization flow (Auth + AuthConfirm) before a session can be
	// established. This is a distinct outcome, not a store failure.
	ErrAuthorizationRequired = errors.New("insync: no refresh token, interactive authorization required")

	// ErrClosed is returned by any operation on a client after Logout.
	ErrClosed = errors.New("insync: client is closed")

	// ErrDeviceIdentityMissing reports a credential store without a device
	// identity. A client cannot operate without one.
	ErrDeviceIdentityMissing = errors.New("insync: device identity missing from credential store")
)

// ProtocolError reports a reply that violates the wire contract: a missing
// or mistyped required field, a body that is not JSON, or a sequence the
// server must never produce. Protocol errors are fatal for the current call
// and never retried.
type ProtocolError struct {
	Endpoint string
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("insync: protocol violation on %s: %s", e.Endpoint, e.Reason)
}

// StatusError reports a recognized business `status` value that is not
// success, such as a non-active device or a refused login.
type StatusError struct {
	Endpoint string
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("insync: %s returned status %q", e.Endpoint, e.Status)
}

// HTTPError reports a 4xx or 5xx reply. Message carries the body's
// machine-readable `message` field verbatim when the server sent one.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	class := "HTTP"
	switch {
	case e.StatusCode >= 500:
		class = "server error"
	case e.StatusCode >= 400:
		class = "client error"
	}
	if e.Message != "" {
		return fmt.Sprintf("insync: %s %d: %s", class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("insync: %s %d", class, e.StatusCode)
}

// IsServerError reports whether the failure was on the server side (5xx).
func (e *HTTPError) IsServerError() bool { return e.StatusCode >= 500 }

// NetErrorKind tags a transport-level fault so callers can match on the
// kind directly instead of unwrapping an error chain.
type NetErrorKind string

const (
	KindTimeout     NetErrorKind = "timeout"
	KindConnReset   NetErrorKind = "connection_reset"
	KindConnRefused NetErrorKind = "connection_refused"
	KindDNS         NetErrorKind = "dns"
	KindTLS         NetErrorKind = "tls"
	KindOther       NetErrorKind = "network"
)

// NetError is any transport-level fault: timeout, reset, refusal, DNS or
// TLS failure. It is distinct from HTTP-status failures; the request may
// never have reached the server. Transport never retries these.
type NetError struct {
	Kind     NetErrorKind
	Endpoint string
	Err      error
}

func (e *NetError) Error() string {
	return fmt.Sprintf("insync: %s failure on %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *NetError) Unwrap() error { return e.Err }

// Timeout reports whether the fault was a timeout and is therefore safe to
// retry at the caller's discretion.
func (e *NetError) Timeout() bool { return e.Kind == KindTimeout }

// classifyNetError wraps a fault from the HTTP layer with a tagged kind.
// The checks walk the wrapped chain via errors.Is/As, so url.Error and
// net.OpError nesting is handled without manual unwrapping.
func classifyNetError(endpoint string, err error) *NetError {
	kind := KindOther

	var (
		dnsErr  *net.DNSError
		certErr *tls.CertificateVerificationError
		recErr  tls.RecordHeaderError
		netErr  net.Error
	)
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		kind = KindConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnRefused
	case errors.As(err, &dnsErr):
		kind = KindDNS
	case errors.As(err, &certErr), errors.As(err, &recErr):
		kind = KindTLS
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &NetError{Kind: kind, Endpoint: endpoint, Err: err}
}
