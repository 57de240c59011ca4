// Package id parses and validates Matrix identifiers and content URIs.
package id

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

// UserID is a parsed "@localpart:domain" Matrix user identifier.
type UserID struct {
	raw       string
	localpart string
	domain    spec.ServerName
}

// ParseUserID validates and splits a Matrix user ID into its localpart and
// domain. lenient mirrors gomatrixserverlib's lenient flag: when true,
// localparts that don't match the strict grammar (legacy third-party-ID
// style user IDs) are still accepted.
func ParseUserID(raw string, lenient bool) (*UserID, error) {
	parsed, err := spec.NewUserID(raw, lenient)
	if err != nil {
		return nil, fmt.Errorf("id: invalid user id %q: %w", raw, err)
	}
	return &UserID{raw: parsed.String(), localpart: parsed.Local(), domain: parsed.Domain()}, nil
}

// IsValidUserID reports whether raw is a syntactically valid Matrix user ID.
func IsValidUserID(raw string) bool {
	_, err := ParseUserID(raw, false)
	return err == nil
}

func (u *UserID) String() string           { return u.raw }
func (u *UserID) Localpart() string        { return u.localpart }
func (u *UserID) Domain() spec.ServerName  { return u.domain }
func (u *UserID) IsLocalTo(homeserver spec.ServerName) bool {
	return u.domain == homeserver
}

// RoomID is a parsed "!opaque:domain" Matrix room identifier.
type RoomID struct {
	raw string
}

func ParseRoomID(raw string) (*RoomID, error) {
	parsed, err := spec.NewRoomID(raw)
	if err != nil {
		return nil, fmt.Errorf("id: invalid room id %q: %w", raw, err)
	}
	return &RoomID{raw: parsed.String()}, nil
}

func (r *RoomID) String() string { return r.raw }

// ThumbnailMethod selects the resize strategy for a thumbnail request, per
// the Matrix Client-Server media API (§4.A of the SDK spec).
type ThumbnailMethod string

const (
	ThumbnailCrop  ThumbnailMethod = "crop"
	ThumbnailScale ThumbnailMethod = "scale"
)

// ContentURI is an "mxc://host/mediaId" reference, resolved against a
// homeserver's media repository to produce an HTTP download or thumbnail
// URL. It never carries credentials itself; callers attach the access
// token as required by their MatrixApi transport.
type ContentURI struct {
	Host    string
	MediaID string
}

// ParseContentURI parses an "mxc://host/mediaId" string.
func ParseContentURI(raw string) (ContentURI, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "mxc" || u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
		return ContentURI{}, fmt.Errorf("id: invalid content uri %q", raw)
	}
	return ContentURI{Host: u.Host, MediaID: strings.TrimPrefix(u.Path, "/")}, nil
}

func (c ContentURI) String() string { return fmt.Sprintf("mxc://%s/%s", c.Host, c.MediaID) }

// DownloadURL resolves the content URI to a full-resolution download URL
// against the given homeserver base URL (scheme+authority, no trailing
// slash).
func (c ContentURI) DownloadURL(homeserver string) string {
	return fmt.Sprintf("%s/_matrix/client/v1/media/download/%s/%s",
		strings.TrimSuffix(homeserver, "/"), c.Host, c.MediaID)
}

// ThumbnailURL resolves the content URI to a thumbnail URL of the given
// pixel dimensions and resize method against the given homeserver.
func (c ContentURI) ThumbnailURL(homeserver string, width, height int, method ThumbnailMethod) string {
	if method == "" {
		method = ThumbnailScale
	}
	return fmt.Sprintf("%s/_matrix/client/v1/media/thumbnail/%s/%s?width=%d&height=%d&method=%s",
		strings.TrimSuffix(homeserver, "/"), c.Host, c.MediaID, width, height, method)
}

// NormalizeHomeserverURL trims whitespace and a trailing slash, the
// canonical form check_server expects before probing well-known endpoints.
func NormalizeHomeserverURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}
