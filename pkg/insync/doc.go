/*
Package insync implements a client for the INSYNC.BY mobile-banking
backend protocol: device-identity bootstrapping, the login and
token-refresh state machine, session-id propagation, pinned-endpoint
transport and response error classification.

# Client and sessions

A Client binds one protocol Profile to one credential store and owns a
single logical session:

	store, err := keystore.Open("insync.db")
	client, err := insync.New(ctx, insync.Config{
		Profile: insync.ProfileV10(),
		Store:   store,
	})

	if err := client.Login(ctx); err != nil { ... }
	desk, err := client.Desktop(ctx)
	...
	_ = client.Logout(ctx)

Call is the facade every domain request goes through; it establishes a
session when none is live and attaches the session header:

	raw, err := client.Call(ctx, "History", body, nil)

Devices without a stored refresh token must complete interactive
authorization first. Login reports this as ErrAuthorizationRequired:

	if errors.Is(err, insync.ErrAuthorizationRequired) {
		err = client.Auth(ctx, insync.AuthRequest{Login: ..., DocumentNum: ...})
		// the OTP arrives out of band
		err = client.AuthConfirm(ctx, otp)
	}

# Error taxonomy

Failures surface as typed values: *NetError (tagged transport faults),
*HTTPError (4xx/5xx with the server's message attached), *ProtocolError
(wire-contract violations) and *StatusError (recognized non-success
business statuses). None are retried automatically except the single
server-instructed token-refresh path inside Login.

A Client is not safe for concurrent use without external serialization.
*/
package insync
