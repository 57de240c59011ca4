package mxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matrixgo/sdk/internal/clog"
)

var log = clog.For("mxapi")

// HTTPClient is the net/http-backed MatrixApi implementation — grounded the
// way the Matrix Go client SDKs in the wild do it (plain net/http.Client,
// a BuildURL helper, JSON request/response bodies): the ecosystem never
// reaches for a higher-level REST client for the Client-Server API, so
// this stays on net/http deliberately rather than as an oversight.
type HTTPClient struct {
	Homeserver  string
	AccessToken string
	HTTPClient  *http.Client
}

// NewHTTPClient builds an HTTPClient against homeserver with a sane
// request timeout; the access token is attached after login via
// SetAccessToken.
func NewHTTPClient(homeserver string) *HTTPClient {
	return &HTTPClient{
		Homeserver: homeserver,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *HTTPClient) SetAccessToken(token string) { c.AccessToken = token }

func (c *HTTPClient) buildURL(path string, query url.Values) string {
	u := c.Homeserver + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doRequest issues method against path, encoding reqBody as JSON (if
// non-nil) and decoding the response into resBody (if non-nil). Non-2xx
// responses are translated into *MatrixException.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, query url.Values, reqBody interface{}, resBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		buf, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("mxapi: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), body)
	if err != nil {
		return fmt.Errorf("mxapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("mxapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mxapi: read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var mxErr MatrixException
		if jsonErr := json.Unmarshal(contents, &mxErr); jsonErr != nil || mxErr.Errcode == "" {
			mxErr.Errcode = "M_UNKNOWN"
			mxErr.Error_ = string(contents)
		}
		if ra := resp.Header.Get("Retry-After-Ms"); ra != "" {
			if ms, perr := strconv.ParseInt(ra, 10, 64); perr == nil {
				mxErr.RetryAfterMs = ms
			}
		}
		log.WithFields(logrus.Fields{"method": method, "path": path, "status": resp.StatusCode, "errcode": mxErr.Errcode}).
			Warn("mxapi: homeserver returned an error")
		return &mxErr
	}

	if resBody != nil && len(contents) > 0 {
		if err := json.Unmarshal(contents, resBody); err != nil {
			return fmt.Errorf("mxapi: decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) Sync(ctx context.Context, filter string, since string, timeoutMs int) (*SyncResponse, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	if since != "" {
		q.Set("since", since)
	}
	q.Set("timeout", strconv.Itoa(timeoutMs))
	var resp SyncResponse
	if err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Login(ctx context.Context, body json.RawMessage) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Register(ctx context.Context, body json.RawMessage) (*LoginResponse, error) {
	q := url.Values{"kind": []string{"user"}}
	var resp LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/register", q, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", nil, struct{}{}, nil)
}

func (c *HTTPClient) LogoutAll(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout/all", nil, struct{}{}, nil)
}

func (c *HTTPClient) SendToDevice(ctx context.Context, eventType, txnID string, payload map[string]map[string]json.RawMessage) error {
	path := "/_matrix/client/v3/sendToDevice/" + url.PathEscape(eventType) + "/" + url.PathEscape(txnID)
	return c.doRequest(ctx, http.MethodPut, path, nil, struct {
		Messages map[string]map[string]json.RawMessage `json:"messages"`
	}{payload}, nil)
}

func (c *HTTPClient) RequestDeviceKeys(ctx context.Context, users map[string][]string, timeoutMs int) (*DeviceKeysQueryResponse, error) {
	var resp DeviceKeysQueryResponse
	reqBody := struct {
		DeviceKeys map[string][]string `json:"device_keys"`
		Timeout    int                 `json:"timeout"`
	}{users, timeoutMs}
	if err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/keys/query", nil, reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RequestProfile(ctx context.Context, userID string) (string, string, error) {
	var resp struct {
		DisplayName string `json:"displayname"`
		AvatarURL   string `json:"avatar_url"`
	}
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.DisplayName, resp.AvatarURL, nil
}

func (c *HTTPClient) RequestSupportedVersions(ctx context.Context) (*SupportedVersions, error) {
	var resp SupportedVersions
	if err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/versions", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RequestLoginTypes(ctx context.Context) (*LoginTypes, error) {
	var resp LoginTypes
	if err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/login", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Upload(ctx context.Context, bytes_ []byte, name, contentType string) (*UploadResponse, error) {
	q := url.Values{}
	if name != "" {
		q.Set("filename", name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("/_matrix/media/v3/upload", q), bytes.NewReader(bytes_))
	if err != nil {
		return nil, fmt.Errorf("mxapi: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mxapi: upload: %w", err)
	}
	defer resp.Body.Close()
	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var mxErr MatrixException
		json.Unmarshal(contents, &mxErr)
		if mxErr.Errcode == "" {
			mxErr.Errcode = "M_UNKNOWN"
		}
		return nil, &mxErr
	}
	var out UploadResponse
	if err := json.Unmarshal(contents, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Download(ctx context.Context, mxcURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mxcURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mxapi: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		contents, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mxapi: download %s: status %d: %s", mxcURL, resp.StatusCode, contents)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) SetAvatarUrl(ctx context.Context, userID, contentURI string) error {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID) + "/avatar_url"
	return c.doRequest(ctx, http.MethodPut, path, nil, struct {
		AvatarURL string `json:"avatar_url"`
	}{contentURI}, nil)
}

func (c *HTTPClient) EnablePushRule(ctx context.Context, scope, kind, ruleID string, enabled bool) error {
	path := "/_matrix/client/v3/pushrules/" + url.PathEscape(scope) + "/" + url.PathEscape(kind) + "/" + url.PathEscape(ruleID) + "/enabled"
	return c.doRequest(ctx, http.MethodPut, path, nil, struct {
		Enabled bool `json:"enabled"`
	}{enabled}, nil)
}

func (c *HTTPClient) SetAccountData(ctx context.Context, userID, eventType string, content json.RawMessage) error {
	path := "/_matrix/client/v3/user/" + url.PathEscape(userID) + "/account_data/" + url.PathEscape(eventType)
	return c.doRequest(ctx, http.MethodPut, path, nil, content, nil)
}

func (c *HTTPClient) ChangePassword(ctx context.Context, newPassword string, auth *AuthDict) error {
	reqBody := struct {
		NewPassword string    `json:"new_password"`
		Auth        *AuthDict `json:"auth,omitempty"`
	}{newPassword, auth}
	return c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/account/password", nil, reqBody, nil)
}

func (c *HTTPClient) RedactEvent(ctx context.Context, roomID, eventID, reason, txnID string) (string, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/redact/" + url.PathEscape(eventID) + "/" + url.PathEscape(txnID)
	reqBody := struct {
		Reason string `json:"reason,omitempty"`
	}{reason}
	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.doRequest(ctx, http.MethodPut, path, nil, reqBody, &resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

var _ MatrixApi = (*HTTPClient)(nil)
