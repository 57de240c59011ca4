package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/sdkerr"
)

// normalizeHomeserverURL trims whitespace and a trailing slash (§4.G
// check_server).
func normalizeHomeserverURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

var supportedVersions = map[string]bool{"r0.5.0": true, "r0.6.0": true}

// CheckServer normalizes url, queries supported versions and login flows,
// and succeeds iff at least one of r0.5.0/r0.6.0 is advertised and
// m.login.password is among the login flows (§4.G check_server).
func CheckServer(ctx context.Context, api mxapi.MatrixApi, url string) (string, error) {
	normalized := normalizeHomeserverURL(url)

	versions, err := api.RequestSupportedVersions(ctx)
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.Transport, "client: check_server versions", err)
	}
	ok := false
	for _, v := range versions.Versions {
		if supportedVersions[v] {
			ok = true
			break
		}
	}
	if !ok {
		return "", sdkerr.New(sdkerr.Validation, "client: homeserver does not advertise a supported spec version")
	}

	flows, err := api.RequestLoginTypes(ctx)
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.Transport, "client: check_server login types", err)
	}
	hasPassword := false
	for _, f := range flows.Flows {
		if f.Type == "m.login.password" {
			hasPassword = true
			break
		}
	}
	if !hasPassword {
		return "", sdkerr.New(sdkerr.Validation, "client: homeserver does not support m.login.password")
	}
	return normalized, nil
}

func (c *Client) hydrateFromLogin(resp *mxapi.LoginResponse) error {
	if resp.AccessToken == "" || resp.DeviceID == "" || resp.UserID == "" {
		return sdkerr.New(sdkerr.Protocol, "client: login response missing access_token/device_id/user_id")
	}
	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.deviceID = resp.DeviceID
	c.userID = resp.UserID
	c.mu.Unlock()
	if setter, ok := c.api.(interface{ SetAccessToken(string) }); ok {
		setter.SetAccessToken(resp.AccessToken)
	}
	return nil
}

// Login delegates to the API, requires access_token/device_id/user_id in
// the response, then connects (§4.G login).
func (c *Client) Login(ctx context.Context, body json.RawMessage) error {
	resp, err := c.api.Login(ctx, body)
	if err != nil {
		return err
	}
	if err := c.hydrateFromLogin(resp); err != nil {
		return err
	}
	c.Connect(ctx)
	return nil
}

// Register mirrors Login for the registration flow (§4.G register).
func (c *Client) Register(ctx context.Context, body json.RawMessage) error {
	resp, err := c.api.Register(ctx, body)
	if err != nil {
		return err
	}
	if err := c.hydrateFromLogin(resp); err != nil {
		return err
	}
	c.Connect(ctx)
	return nil
}

// Logout calls the API then clear(); clear() still runs even if the API
// call fails (§4.G logout).
func (c *Client) Logout(ctx context.Context) error {
	apiErr := c.api.Logout(ctx)
	clearErr := c.clear(ctx)
	if apiErr != nil {
		return apiErr
	}
	return clearErr
}

// LogoutAll mirrors Logout for logout_all (§4.G logout_all).
func (c *Client) LogoutAll(ctx context.Context) error {
	apiErr := c.api.LogoutAll(ctx)
	clearErr := c.clear(ctx)
	if apiErr != nil {
		return apiErr
	}
	return clearErr
}

// ChangePassword supplies an m.login.password auth stanza when old is
// non-empty; on a requireAdditionalAuthentication response whose flow is
// exactly m.login.password, it retries once with the server's session
// token (§4.G changePassword).
func (c *Client) ChangePassword(ctx context.Context, newPassword, oldPassword string) error {
	var auth *mxapi.AuthDict
	if oldPassword != "" {
		identifier, _ := json.Marshal(map[string]string{"type": "m.id.user", "user": c.UserID()})
		auth = &mxapi.AuthDict{Type: "m.login.password", Password: oldPassword, Identifier: identifier}
	}

	err := c.api.ChangePassword(ctx, newPassword, auth)
	if err == nil {
		return nil
	}

	var mxErr *mxapi.MatrixException
	if !errors.As(err, &mxErr) || mxErr.Session == "" {
		return err
	}
	if len(mxErr.AuthenticationFlows) != 1 || len(mxErr.AuthenticationFlows[0].Stages) != 1 ||
		mxErr.AuthenticationFlows[0].Stages[0] != "m.login.password" {
		return err
	}
	if auth == nil {
		return err
	}
	auth.Session = mxErr.Session
	return c.api.ChangePassword(ctx, newPassword, auth)
}
