package insync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/insyncby/insync/pkg/slogx"
)

// Credential store keys. The on-disk layout is two opaque values: the
// device identity provisioned at registration and the current refresh
// token.
const (
	KeyDeviceID = "uuid"
	KeyToken    = "token"
)

// CredentialStore is the durable key/value persistence the client reads
// its device identity from and writes refresh tokens to. A missing key is
// reported via ok=false, not an error. *keystore.Store implements it.
type CredentialStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Config carries client construction parameters. Profile defaults to
// ProfileV10 and Locale to "en"; Store is required.
type Config struct {
	Profile Profile
	Store   CredentialStore
	Locale  string

	Logger  *slog.Logger
	Limiter *rate.Limiter

	// HTTPClient replaces the pinned transport client when set. Intended
	// for tests and environments that require an outbound proxy.
	HTTPClient *http.Client
}

// Client is the authenticated request facade over the banking backend. It
// owns one logical session: Call ensures a live session, attaches the
// session header and returns the parsed reply.
//
// A Client is not safe for concurrent use; session state is mutated in
// place. Callers sharing one instance must serialize externally.
type Client struct {
	profile Profile
	store   CredentialStore
	tr      *transport
	logger  *slog.Logger
	locale  string

	deviceID  string
	token     string
	sessionID string
	closed    bool
}

// New constructs a client bound to one protocol profile and one credential
// store. The endpoint hostname is resolved here and stays pinned for the
// client's lifetime. Construction fails when the store is unreadable or
// holds no device identity; a missing refresh token is fine and only means
// interactive authorization must run before Login.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("insync: credential store is required")
	}

	profile := cfg.Profile
	if profile.Name == "" {
		profile = ProfileV10()
	}
	locale := cfg.Locale
	if locale == "" {
		locale = "en"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slogx.FromContext(ctx)
	}

	deviceID, ok, err := cfg.Store.Get(ctx, KeyDeviceID)
	if err != nil {
		return nil, fmt.Errorf("insync: read device identity: %w", err)
	}
	if !ok || deviceID == "" {
		return nil, ErrDeviceIdentityMissing
	}

	token, _, err := cfg.Store.Get(ctx, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("insync: read refresh token: %w", err)
	}

	tr, err := newTransport(ctx, profile, cfg.HTTPClient, cfg.Limiter, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		profile:  profile,
		store:    cfg.Store,
		tr:       tr,
		logger:   logger,
		locale:   locale,
		deviceID: deviceID,
		token:    token,
	}, nil
}

// DeviceID returns the device identity the client was constructed with.
func (c *Client) DeviceID() string { return c.deviceID }

// SessionID returns the current session identifier, or the empty string
// when no session is live.
func (c *Client) SessionID() string { return c.sessionID }

// Call is the single entry point for domain requests. When no session is
// live it runs the login sequence first, then sends the request with the
// current session header attached. Replies come back as raw JSON; Call
// never interprets domain fields and never retries HTTP failures.
func (c *Client) Call(ctx context.Context, endpoint string, body any, params url.Values) (json.RawMessage, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.sessionID == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}
	return c.tr.request(ctx, endpoint, body, params, c.sessionID)
}

// ProvisionDeviceID writes a freshly generated device identity into the
// store unless one is already present, and returns the identity in effect.
// The client itself never generates identities; registration tooling calls
// this once per installation.
func ProvisionDeviceID(ctx context.Context, store CredentialStore) (string, error) {
	id, ok, err := store.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("insync: read device identity: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := store.Set(ctx, KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("insync: persist device identity: %w", err)
	}
	return id, nil
}
