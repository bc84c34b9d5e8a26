package insync

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// mapStore is an in-memory credential store for tests.
type mapStore struct {
	m      map[string]string
	getErr error
	setErr error
}

func newMapStore(pairs ...string) *mapStore {
	m := map[string]string{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return &mapStore{m: m}
}

func (s *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.m[key] = value
	return nil
}

func (s *mapStore) Close() error { return nil }

// newTestClient builds a client against an httptest server, bypassing the
// pinned transport.
func newTestClient(t *testing.T, handler http.Handler, store CredentialStore, profile Profile) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	profile.BaseURL = srv.URL + "/"
	client, err := New(context.Background(), Config{
		Profile:    profile,
		Store:      store,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return client, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestLoginHappyPath(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")

	var statusCalls, loginCalls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CheckDeviceStatus":
			statusCalls++
			require.Empty(t, r.Header.Get("X-Session-ID"))
			require.Equal(t, "en", r.URL.Query().Get("lang"))
			body := decodeBody(t, r)
			require.Equal(t, "abc-123", body["deviceId"])
			require.Equal(t, "en", body["locale"])
			writeJSON(t, w, map[string]any{"status": "ACTIVE", "sessionId": "S1"})
		case "/LoginByToken":
			loginCalls++
			require.Equal(t, "S1", r.Header.Get("X-Session-ID"))
			body := decodeBody(t, r)
			require.Equal(t, "abc-123", body["deviceId"])
			require.Equal(t, "T1", body["token"])
			require.Equal(t, "PIN", body["tokenType"])
			writeJSON(t, w, map[string]any{"status": "OK"})
		default:
			t.Errorf("unexpected endpoint %s", r.URL.Path)
		}
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, "S1", client.SessionID())
	require.Equal(t, 1, statusCalls)
	require.Equal(t, 1, loginCalls)
}

func TestLoginTokenExpiredOnce(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")

	var statusCalls, loginCalls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CheckDeviceStatus":
			statusCalls++
			writeJSON(t, w, map[string]any{"status": "ACTIVE", "sessionId": "S1"})
		case "/LoginByToken":
			loginCalls++
			body := decodeBody(t, r)
			if body["token"] == "T1" {
				writeJSON(t, w, map[string]any{"status": "TOKEN_EXPIRED", "token": "T2"})
				return
			}
			require.Equal(t, "T2", body["token"])
			writeJSON(t, w, map[string]any{"status": "OK"})
		}
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, "T2", store.m[KeyToken])
	require.Equal(t, 2, statusCalls, "expiry must restart the full sequence")
	require.Equal(t, 2, loginCalls)
}

func TestLoginTokenExpiredTwiceIsFatal(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")

	var loginCalls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CheckDeviceStatus":
			writeJSON(t, w, map[string]any{"status": "ACTIVE", "sessionId": "S1"})
		case "/LoginByToken":
			loginCalls++
			writeJSON(t, w, map[string]any{"status": "TOKEN_EXPIRED", "token": "T2"})
		}
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	err := client.Login(context.Background())

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 2, loginCalls, "must not loop past the second expiry signal")
	require.Empty(t, client.SessionID())
}

func TestLoginDeviceNotActive(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": "BLOCKED", "sessionId": "S1"})
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	err := client.Login(context.Background())

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "BLOCKED", serr.Status)
	require.Empty(t, client.SessionID())
}

func TestLoginStatusFieldValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		reply string
	}{
		{"missing", `{"sessionId":"S1"}`},
		{"wrong type", `{"status":5,"sessionId":"S1"}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.reply))
			})

			client, _ := newTestClient(t, handler, store, ProfileV10())
			err := client.Login(context.Background())

			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestLoginRefusedDiscardsSession(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CheckDeviceStatus":
			writeJSON(t, w, map[string]any{"status": "ACTIVE", "sessionId": "S1"})
		case "/LoginByToken":
			writeJSON(t, w, map[string]any{"status": "DENIED"})
		}
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	err := client.Login(context.Background())

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Empty(t, client.SessionID())
}

func TestLoginWithoutToken(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123")
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}), store, ProfileV10())

	err := client.Login(context.Background())
	require.ErrorIs(t, err, ErrAuthorizationRequired)
}

func TestLoginClearsStaleSessionID(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CheckDeviceStatus":
			require.Empty(t, r.Header.Get("X-Session-ID"), "stale session id must not reach the status check")
			writeJSON(t, w, map[string]any{"status": "ACTIVE", "sessionId": "S2"})
		case "/LoginByToken":
			writeJSON(t, w, map[string]any{"status": "OK"})
		}
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	client.sessionID = "stale"
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, "S2", client.SessionID())
}

func TestLogoutConnectionResetIsSuccess(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 512)
		_, _ = conn.Read(buf)
		// SetLinger(0) makes the close an RST rather than a FIN.
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		_ = conn.Close()
	}()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")
	profile := ProfileV10()
	profile.BaseURL = "http://" + ln.Addr().String() + "/"
	client, err := New(context.Background(), Config{
		Profile:    profile,
		Store:      store,
		HTTPClient: &http.Client{},
	})
	require.NoError(t, err)
	client.sessionID = "S1"

	require.NoError(t, client.Logout(context.Background()))
	require.Empty(t, client.SessionID())

	_, err = client.Call(context.Background(), "Desktop", nil, nil)
	require.ErrorIs(t, err, ErrClosed)
}

func TestLogoutOtherErrorPropagates(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123", KeyToken, "T1")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(t, w, map[string]any{"message": "session service down"})
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	client.sessionID = "S1"

	err := client.Logout(context.Background())
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	require.True(t, herr.IsServerError())
	require.Equal(t, "S1", client.SessionID(), "failed logout keeps the session")
	require.False(t, client.closed)
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Authorization":
			require.Equal(t, "en", r.URL.Query().Get("lang"))
			body := decodeBody(t, r)
			require.Equal(t, true, body["isResident"])
			require.Equal(t, "abc-123", body["deviceId"])
			require.Equal(t, "Android (insync.by go api)", body["deviceName"])
			require.Equal(t, float64(1200), body["screenHeight"])
			require.Equal(t, float64(768), body["screenWidth"])
			require.Equal(t, "jdoe", body["login"])
			require.Equal(t, "AB1234567", body["documentNum"])
			writeJSON(t, w, map[string]any{"status": "OK"})
		case "/AuthorizationConfirm":
			body := decodeBody(t, r)
			require.Equal(t, "abc-123", body["deviceId"])
			require.Equal(t, "PIN", body["tokenType"])
			require.Equal(t, "123456", body["otp"])
			writeJSON(t, w, map[string]any{"status": "OK", "sessionId": "S9", "token": "T9"})
		case "/Desktop":
			require.Equal(t, "S9", r.Header.Get("X-Session-ID"))
			writeJSON(t, w, map[string]any{"shortcuts": []any{}})
		case "/CheckDeviceStatus", "/LoginByToken":
			t.Errorf("confirmed authorization must not trigger a fresh login, got %s", r.URL.Path)
		}
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())

	require.NoError(t, client.Auth(context.Background(), AuthRequest{
		Login:       "jdoe",
		DocumentNum: "AB1234567",
	}))
	require.NoError(t, client.AuthConfirm(context.Background(), "123456"))

	require.Equal(t, "T9", store.m[KeyToken])
	require.Equal(t, "S9", client.SessionID())

	// The granted session must be usable without another Login.
	_, err := client.Call(context.Background(), "Desktop", map[string]any{"deviceId": "abc-123"}, nil)
	require.NoError(t, err)
}

func TestAuthConfirmRejected(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": "WRONG_OTP"})
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	err := client.AuthConfirm(context.Background(), "000000")

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "WRONG_OTP", serr.Status)
	_, ok := store.m[KeyToken]
	require.False(t, ok, "rejected confirmation must not persist a token")
}

func TestAuthConfirmPersistFailure(t *testing.T) {
	t.Parallel()

	store := newMapStore(KeyDeviceID, "abc-123")
	store.setErr = errors.New("disk full")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": "OK", "sessionId": "S9", "token": "T9"})
	})

	client, _ := newTestClient(t, handler, store, ProfileV10())
	err := client.AuthConfirm(context.Background(), "123456")
	require.ErrorContains(t, err, "persist refresh token")
	require.Empty(t, client.SessionID(), "session becomes current only after the token is durable")
}
