package insync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Fixed device metadata submitted during interactive authorization. These
// describe the client installation, not the user.
const (
	authScreenHeight = 1200
	authScreenWidth  = 768
)

// Login establishes an authenticated session from the stored refresh
// token. The sequence is: clear any stale session id, check the device
// status (which grants a provisional session id), then log in by token
// with that provisional session attached.
//
// When the server reports the token expired it also issues a replacement;
// the replacement is persisted and the whole sequence restarts once. A
// second consecutive expiry signal is a protocol violation rather than
// grounds for another loop.
func (c *Client) Login(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.token == "" {
		return ErrAuthorizationRequired
	}

	retried := false
	for {
		// The status endpoint must not see a session header from a
		// previous attempt.
		c.sessionID = ""

		device, err := c.checkDeviceStatus(ctx)
		if err != nil {
			return err
		}
		status, err := requireStatus(epCheckDeviceStatus, device.Status)
		if err != nil {
			return err
		}
		if status != statusActive {
			return &StatusError{Endpoint: epCheckDeviceStatus, Status: status}
		}
		if device.SessionID == "" {
			return &ProtocolError{Endpoint: epCheckDeviceStatus, Reason: "active device reply without sessionId"}
		}
		c.sessionID = device.SessionID

		raw, err := c.tr.request(ctx, epLoginByToken, map[string]any{
			"deviceId":  c.deviceID,
			"token":     c.token,
			"tokenType": tokenTypePIN,
		}, nil, c.sessionID)
		if err != nil {
			c.sessionID = ""
			return err
		}

		var reply loginReply
		if err := decodeReply(epLoginByToken, raw, &reply); err != nil {
			c.sessionID = ""
			return err
		}
		status, err = requireStatus(epLoginByToken, reply.Status)
		if err != nil {
			c.sessionID = ""
			return err
		}

		switch status {
		case statusOK:
			return nil

		case statusTokenExpired:
			if retried {
				c.sessionID = ""
				return &ProtocolError{Endpoint: epLoginByToken, Reason: "token reported expired twice in a row"}
			}
			if reply.Token == "" {
				c.sessionID = ""
				return &ProtocolError{Endpoint: epLoginByToken, Reason: "expired-token reply without replacement token"}
			}
			// The store write must land before the replacement becomes
			// authoritative for the retry.
			if err := c.store.Set(ctx, KeyToken, reply.Token); err != nil {
				c.sessionID = ""
				return fmt.Errorf("insync: persist refresh token: %w", err)
			}
			c.token = reply.Token
			retried = true

		default:
			c.sessionID = ""
			return &StatusError{Endpoint: epLoginByToken, Status: status}
		}
	}
}

func (c *Client) checkDeviceStatus(ctx context.Context) (*deviceStatusReply, error) {
	raw, err := c.tr.request(ctx, epCheckDeviceStatus, map[string]any{
		"deviceId": c.deviceID,
		"locale":   c.locale,
	}, url.Values{"lang": {c.locale}}, "")
	if err != nil {
		return nil, err
	}
	var reply deviceStatusReply
	if err := decodeReply(epCheckDeviceStatus, raw, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Logout ends the session. The peer resetting the connection during this
// specific call is its own way of tearing the session down and counts as
// success; every other failure propagates. Afterwards the client is closed
// and must be re-constructed before any further use.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}

	_, err := c.tr.request(ctx, epLogout, nil, nil, c.sessionID)
	if err != nil {
		var nerr *NetError
		if !errors.As(err, &nerr) || nerr.Kind != KindConnReset {
			return err
		}
	}

	c.sessionID = ""
	c.tr = nil
	c.closed = true
	return nil
}

// AuthRequest carries the caller-supplied fields for interactive
// authorization. The zero value means a resident account; Extra covers
// fields this client does not model, since the backend protocol has no
// formal specification.
type AuthRequest struct {
	Login       string
	DocumentNum string
	IssueDate   string
	NonResident bool
	Extra       map[string]any
}

// Auth starts interactive authorization for a device without a usable
// refresh token. On success the backend sends a one-time password out of
// band; the flow completes with AuthConfirm.
func (c *Client) Auth(ctx context.Context, req AuthRequest) error {
	if c.closed {
		return ErrClosed
	}

	body := map[string]any{
		"isResident":   !req.NonResident,
		"deviceId":     c.deviceID,
		"deviceName":   c.profile.DeviceName,
		"screenHeight": authScreenHeight,
		"screenWidth":  authScreenWidth,
	}
	if req.Login != "" {
		body["login"] = req.Login
	}
	if req.DocumentNum != "" {
		body["documentNum"] = req.DocumentNum
	}
	if req.IssueDate != "" {
		body["issueDate"] = req.IssueDate
	}
	for k, v := range req.Extra {
		body[k] = v
	}

	raw, err := c.tr.request(ctx, epAuthorization, body, url.Values{"lang": {c.locale}}, c.sessionID)
	if err != nil {
		return err
	}

	var reply statusReply
	if err := decodeReply(epAuthorization, raw, &reply); err != nil {
		return err
	}
	status, err := requireStatus(epAuthorization, reply.Status)
	if err != nil {
		return err
	}
	if status != statusOK {
		return &StatusError{Endpoint: epAuthorization, Status: status}
	}
	return nil
}

// AuthConfirm completes interactive authorization with the one-time
// password the caller received out of band. On success the server grants
// both a live session and a new refresh token; the token is persisted
// before the session becomes current, so a crash in between never leaves
// an unusable stored state.
func (c *Client) AuthConfirm(ctx context.Context, otp string) error {
	if c.closed {
		return ErrClosed
	}

	raw, err := c.tr.request(ctx, epAuthorizationConfirm, map[string]any{
		"deviceId":  c.deviceID,
		"tokenType": tokenTypePIN,
		"otp":       otp,
	}, url.Values{"lang": {c.locale}}, c.sessionID)
	if err != nil {
		return err
	}

	var reply authConfirmReply
	if err := decodeReply(epAuthorizationConfirm, raw, &reply); err != nil {
		return err
	}
	status, err := requireStatus(epAuthorizationConfirm, reply.Status)
	if err != nil {
		return err
	}
	if status != statusOK {
		return &StatusError{Endpoint: epAuthorizationConfirm, Status: status}
	}
	if reply.SessionID == "" || reply.Token == "" {
		return &ProtocolError{Endpoint: epAuthorizationConfirm, Reason: "confirm reply missing sessionId or token"}
	}

	if err := c.store.Set(ctx, KeyToken, reply.Token); err != nil {
		return fmt.Errorf("insync: persist refresh token: %w", err)
	}
	c.token = reply.Token
	c.sessionID = reply.SessionID
	return nil
}
