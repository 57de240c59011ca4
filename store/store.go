// Package store defines the Database capability (§6): the on-disk schema
// is an external collaborator; the core only depends on this interface.
// Concrete adapters (sqlite, postgres) live in subpackages.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matrixgo/sdk/event"
)

// ClientRow is the persisted session row (§3 Client session).
type ClientRow struct {
	ClientID     string
	ClientName   string
	Homeserver   string
	Token        string
	UserID       string
	DeviceID     string
	DeviceName   string
	PrevBatch    string
	OlmAccount   []byte
}

// RoomUpdateRow is what storeRoomUpdate persists.
type RoomUpdateRow struct {
	ClientID          string
	RoomID            string
	Membership        string
	PrevBatch         string
	HighlightCount    int
	NotificationCount int
	SummaryJSON       json.RawMessage
}

// EventUpdateRow is what storeEventUpdate persists.
type EventUpdateRow struct {
	ClientID string
	RoomID   string
	Kind     string // "state" | "timeline" | "invite_state" | "account_data" | "ephemeral"
	Event    event.DatabaseRow
}

// DeviceKeyRow / CrossSigningKeyRow mirror §4.F's persisted shapes.
type DeviceKeyRow struct {
	UserID          string
	DeviceID        string
	Ed25519Key      string
	Curve25519Key   string
	DirectVerified  bool
	Blocked         bool
	ValidSignatures json.RawMessage
}

type CrossSigningKeyRow struct {
	UserID          string
	PublicKey       string
	Usage           string
	DirectVerified  bool
	Blocked         bool
	ValidSignatures json.RawMessage
}

// Database is the capability the core depends on for persistence (§6).
type Database interface {
	GetClient(ctx context.Context, name string) (*ClientRow, error)
	InsertClient(ctx context.Context, row ClientRow) error
	UpdateClient(ctx context.Context, row ClientRow) error
	StorePrevBatch(ctx context.Context, clientID, roomID, prevBatch string) error
	StoreAccountData(ctx context.Context, clientID, eventType string, content json.RawMessage) error
	StoreRoomUpdate(ctx context.Context, row RoomUpdateRow) error
	StoreEventUpdate(ctx context.Context, row EventUpdateRow) error

	StoreFile(ctx context.Context, uri string, bytes []byte, ts time.Time) error
	GetFile(ctx context.Context, uri string) ([]byte, bool, error)
	DeleteOldFiles(ctx context.Context, before time.Time) error
	MaxFileSize() int64

	StoreUserDeviceKey(ctx context.Context, row DeviceKeyRow) error
	RemoveUserDeviceKey(ctx context.Context, userID, deviceID string) error
	StoreUserDeviceKeysInfo(ctx context.Context, userID string, outdated bool) error
	StoreUserCrossSigningKey(ctx context.Context, row CrossSigningKeyRow) error
	GetUserDeviceKeys(ctx context.Context, clientID string) (map[string][]DeviceKeyRow, error)

	GetRoomList(ctx context.Context, clientID string, onlyLeft bool) ([]RoomUpdateRow, error)
	GetAccountData(ctx context.Context, clientID string) (map[string]json.RawMessage, error)
	GetUser(ctx context.Context, clientID, userID, roomID string) (*event.DatabaseRow, error)
	RemoveEvent(ctx context.Context, clientID, roomID, eventID string) error

	Clear(ctx context.Context, clientID string) error
	ClearCache(ctx context.Context, clientID string) error

	// Transaction runs fn inside one database transaction; fn's context
	// carries the transaction so nested Database calls participate in it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}
