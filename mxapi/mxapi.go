// Package mxapi defines the MatrixApi capability the core depends on (§6):
// the typed HTTP transport and JSON codec for the Client-Server API is an
// external collaborator; this package only specifies its interface and the
// wire shapes the core must round-trip.
package mxapi

import (
	"context"
	"encoding/json"
)

// MatrixException is the typed error a MatrixApi implementation returns for
// homeserver-level protocol failures.
type MatrixException struct {
	Errcode             string
	Error_              string
	RetryAfterMs        int64
	Session             string
	AuthenticationFlows []LoginFlow
}

func (e *MatrixException) Error() string { return e.Errcode + ": " + e.Error_ }

// LoginFlow is one entry of a "requireAdditionalAuthentication" / login
// flows response.
type LoginFlow struct {
	Type  string   `json:"type"`
	Stages []string `json:"stages,omitempty"`
}

// SyncResponse is the top-level shape of a /sync response. Per-field
// payloads stay as json.RawMessage; only the routing-relevant shape
// (room categories, to-device, presence, account data, device lists, OTK
// counts) is typed.
type SyncResponse struct {
	NextBatch   string          `json:"next_batch"`
	Rooms       SyncRooms       `json:"rooms"`
	ToDevice    SyncToDevice    `json:"to_device"`
	Presence    SyncEvents      `json:"presence"`
	AccountData SyncEvents      `json:"account_data"`
	DeviceLists DeviceLists     `json:"device_lists"`
	DeviceOneTimeKeysCount map[string]int `json:"device_one_time_keys_count"`
}

type SyncRooms struct {
	Join   map[string]JoinedRoom  `json:"join"`
	Invite map[string]InvitedRoom `json:"invite"`
	Leave  map[string]LeftRoom    `json:"leave"`
}

type SyncEvents struct {
	Events []json.RawMessage `json:"events"`
}

type SyncTimeline struct {
	Events    []json.RawMessage `json:"events"`
	Limited   bool              `json:"limited"`
	PrevBatch string            `json:"prev_batch"`
}

type UnreadNotifications struct {
	HighlightCount    int `json:"highlight_count"`
	NotificationCount int `json:"notification_count"`
}

type RoomSummary struct {
	Heroes             []string `json:"m.heroes,omitempty"`
	JoinedMemberCount  *int     `json:"m.joined_member_count,omitempty"`
	InvitedMemberCount *int     `json:"m.invited_member_count,omitempty"`
}

type JoinedRoom struct {
	State                SyncEvents           `json:"state"`
	Timeline             SyncTimeline         `json:"timeline"`
	Ephemeral            SyncEvents           `json:"ephemeral"`
	AccountData          SyncEvents           `json:"account_data"`
	UnreadNotifications  UnreadNotifications  `json:"unread_notifications"`
	Summary              RoomSummary          `json:"summary"`
}

type InvitedRoom struct {
	InviteState SyncEvents `json:"invite_state"`
}

type LeftRoom struct {
	State       SyncEvents   `json:"state"`
	Timeline    SyncTimeline `json:"timeline"`
	AccountData SyncEvents   `json:"account_data"`
}

type SyncToDevice struct {
	Events []json.RawMessage `json:"events"`
}

type DeviceLists struct {
	Changed []string `json:"changed"`
	Left    []string `json:"left"`
}

// LoginResponse is the shape of login/register responses the core depends
// on, trimmed to the fields connect() hydrates from.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
}

// DeviceKeysQueryResponse is requestDeviceKeys's response shape.
type DeviceKeysQueryResponse struct {
	DeviceKeys        map[string]map[string]json.RawMessage `json:"device_keys"`
	MasterKeys        map[string]json.RawMessage            `json:"master_keys,omitempty"`
	SelfSigningKeys   map[string]json.RawMessage            `json:"self_signing_keys,omitempty"`
	UserSigningKeys   map[string]json.RawMessage            `json:"user_signing_keys,omitempty"`
	Failures          map[string]json.RawMessage            `json:"failures"`
}

// SupportedVersions is the response of requestSupportedVersions.
type SupportedVersions struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features"`
}

// LoginTypes is the response of requestLoginTypes.
type LoginTypes struct {
	Flows []LoginFlow `json:"flows"`
}

// UploadResponse is upload's response shape.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// AuthDict carries an authentication stanza for endpoints that may require
// user-interactive auth (changePassword with an old password, etc).
type AuthDict struct {
	Type     string `json:"type"`
	Session  string `json:"session,omitempty"`
	Password string `json:"password,omitempty"`
	Identifier json.RawMessage `json:"identifier,omitempty"`
}

// MatrixApi is the capability the core consumes for all homeserver
// communication. Implementations live outside the core (§1 Purpose &
// scope); this interface is what the sync engine, client façade, and
// device-key tracker are written against.
type MatrixApi interface {
	Sync(ctx context.Context, filter string, since string, timeoutMs int) (*SyncResponse, error)
	Login(ctx context.Context, body json.RawMessage) (*LoginResponse, error)
	Register(ctx context.Context, body json.RawMessage) (*LoginResponse, error)
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	SendToDevice(ctx context.Context, eventType, txnID string, payload map[string]map[string]json.RawMessage) error
	RequestDeviceKeys(ctx context.Context, users map[string][]string, timeoutMs int) (*DeviceKeysQueryResponse, error)
	RequestProfile(ctx context.Context, userID string) (displayName, avatarURL string, err error)
	RequestSupportedVersions(ctx context.Context) (*SupportedVersions, error)
	RequestLoginTypes(ctx context.Context) (*LoginTypes, error)
	Upload(ctx context.Context, bytes []byte, name, contentType string) (*UploadResponse, error)
	Download(ctx context.Context, url string) ([]byte, error)
	SetAvatarUrl(ctx context.Context, userID, contentURI string) error
	EnablePushRule(ctx context.Context, scope, kind, ruleID string, enabled bool) error
	SetAccountData(ctx context.Context, userID, eventType string, content json.RawMessage) error
	ChangePassword(ctx context.Context, newPassword string, auth *AuthDict) error
	RedactEvent(ctx context.Context, roomID, eventID, reason, txnID string) (string, error)
}
