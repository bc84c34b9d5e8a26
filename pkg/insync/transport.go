package insync

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

const (
	headerSession   = "X-Session-ID"
	headerClientApp = "X-Client-App"

	dialTimeout     = 30 * time.Second
	responseTimeout = 90 * time.Second
)

// lookupHost resolves the endpoint hostname once at construction. Tests
// override this to pin against a known address.
var lookupHost = func(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

// transport issues one protocol request at a time against a pinned
// endpoint. The socket dials the address the hostname resolved to at
// construction while TLS keeps verifying the certificate against the
// original hostname, so a later DNS change cannot substitute the endpoint
// mid-session. Transport holds no session state and never retries.
type transport struct {
	base       *url.URL
	hostname   string
	pinnedAddr string
	client     *http.Client
	clientApp  string
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func newTransport(ctx context.Context, p Profile, override *http.Client, limiter *rate.Limiter, logger *slog.Logger) (*transport, error) {
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("insync: invalid base url %q: %w", p.BaseURL, err)
	}
	if base.Hostname() == "" {
		return nil, fmt.Errorf("insync: base url %q has no hostname", p.BaseURL)
	}

	t := &transport{
		base:      base,
		hostname:  base.Hostname(),
		clientApp: p.ClientApp,
		userAgent: p.UserAgent,
		limiter:   limiter,
		logger:    logger,
	}

	// An override client skips resolution and pinning entirely. It exists
	// for tests and corporate proxies; production use goes through the
	// pinned client below.
	if override != nil {
		t.client = override
		return t, nil
	}

	addrs, err := lookupHost(ctx, t.hostname)
	if err != nil || len(addrs) == 0 {
		return nil, classifyNetError(p.BaseURL, fmt.Errorf("resolve %s: %w", t.hostname, err))
	}

	port := base.Port()
	if port == "" {
		if base.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	t.pinnedAddr = net.JoinHostPort(addrs[0], port)

	dialer := &net.Dialer{Timeout: dialTimeout}
	t.client = &http.Client{
		Timeout: responseTimeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, t.pinnedAddr)
			},
			TLSClientConfig:   &tls.Config{ServerName: t.hostname},
			ForceAttemptHTTP2: true,
		},
	}

	return t, nil
}

// request sends one request and returns the parsed reply body. A non-nil
// body selects POST with a JSON payload, nil selects GET. The session
// header is attached only when sessionID is non-empty.
func (t *transport) request(ctx context.Context, endpoint string, body any, params url.Values, sessionID string) (json.RawMessage, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	method := http.MethodGet
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("insync: encode %s request: %w", endpoint, err)
		}
		method = http.MethodPost
		payload = bytes.NewReader(b)
	}

	u := t.base.JoinPath(endpoint)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return nil, fmt.Errorf("insync: build %s request: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set(headerClientApp, t.clientApp)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	if sessionID != "" {
		req.Header.Set(headerSession, sessionID)
	}

	logger := t.logger.With("req_id", ulid.Make().String(), "endpoint", endpoint, "method", method)
	logger.Debug("request", "has_session", sessionID != "")
	start := time.Now()

	resp, err := t.client.Do(req)
	if err != nil {
		nerr := classifyNetError(endpoint, err)
		logger.Debug("request failed", "kind", string(nerr.Kind), "error", err)
		return nil, nerr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyNetError(endpoint, err)
	}

	logger.Debug("reply", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 400 {
		herr := &HTTPError{StatusCode: resp.StatusCode}
		var em struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &em) == nil {
			herr.Message = em.Message
		}
		return nil, herr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtocolError{Endpoint: endpoint, Reason: fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode)}
	}
	if !json.Valid(raw) {
		return nil, &ProtocolError{Endpoint: endpoint, Reason: "reply body is not valid JSON"}
	}

	return json.RawMessage(raw), nil
}
