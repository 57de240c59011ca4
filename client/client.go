// Package client implements the Client façade (§4.G): session lifecycle,
// room-list maintenance, broadcast stream exposure, profile caching,
// ignore lists, and the thin action wrappers (login, logout, uploads,
// redactions, push rules) layered over MatrixApi/Database/Encryption.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/matrixgo/sdk/crypto"
	"github.com/matrixgo/sdk/internal/clog"
	"github.com/matrixgo/sdk/internal/txnid"
	"github.com/matrixgo/sdk/keys"
	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/room"
	"github.com/matrixgo/sdk/sdkerr"
	"github.com/matrixgo/sdk/store"
	"github.com/matrixgo/sdk/syncengine"
	"github.com/matrixgo/sdk/timeline"
)

var log = clog.For("client")

// defaultSyncFilter and archiveSyncFilter are the two named filters §6
// documents.
const (
	defaultSyncFilter = `{"room":{"state":{"lazy_load_members":true}}}`
	archiveSyncFilter = `{"room":{"include_leave":true,"timeline":{"limit":10}}}`
	messagesFilter    = `{"lazy_load_members":true}`
)

// Config bootstraps a session (§1 ambient stack: config is a plain struct
// with a Defaults method, the way dendrite's setup/config sets per-API
// config).
type Config struct {
	ClientName       string
	Homeserver       string
	BackgroundSync   bool
	SyncErrorTimeout time.Duration
	PinUnreadRooms   bool
}

// Defaults fills unset fields with the documented defaults.
func (c Config) Defaults() Config {
	if c.ClientName == "" {
		c.ClientName = "matrixgo-sdk"
	}
	if c.SyncErrorTimeout == 0 {
		c.SyncErrorTimeout = 5 * time.Second
	}
	return c
}

// roomEntry pairs a Room with its Timeline and the bookkeeping the façade
// needs for sorting/favourites that the room package itself doesn't own.
type roomEntry struct {
	room       *room.Room
	timeline   *timeline.Timeline
	favourite  bool
	timeCreated int64
}

// Client is the top-level façade described by §4.G. It owns the Rooms map
// (per §3 Ownership) and is the syncengine.Rooms/syncengine.Session
// implementation the Engine is driven against.
type Client struct {
	mu sync.RWMutex

	api mxapi.MatrixApi
	db  store.Database
	enc crypto.Encryption

	cfg Config

	clientID    string
	userID      string
	deviceID    string
	accessToken string
	prevBatch   string
	loggedIn    bool

	rooms       map[string]*roomEntry
	sortedOrder []string
	firstSynced bool
	sorting     bool

	tracker *keys.Tracker
	txn     *txnid.Generator
	now     func() time.Time

	profileCache *gocache.Cache
	fileCache    *dbFileCache

	engine    *syncengine.Engine
	userHooks syncengine.Hooks

	accountData map[string]json.RawMessage
}

// New constructs a disconnected Client. Call Connect (after Login/Register
// populate the session fields) to start syncing.
func New(api mxapi.MatrixApi, db store.Database, enc crypto.Encryption, cfg Config) *Client {
	if enc == nil {
		enc = crypto.Disabled{}
	}
	c := &Client{
		api: api, db: db, enc: enc,
		cfg:          cfg.Defaults(),
		clientID:     uuid.NewString(),
		rooms:        make(map[string]*roomEntry),
		now:          time.Now,
		profileCache: gocache.New(10*time.Minute, 15*time.Minute),
		accountData:  make(map[string]json.RawMessage),
	}
	c.fileCache = newDBFileCache(c)
	c.txn = txnid.New(c.cfg.ClientName, func() int64 { return c.now().UnixMilli() })
	return c
}

// SetHooks installs the broadcast callbacks the sync engine drives.
// Call before Connect.
func (c *Client) SetHooks(h syncengine.Hooks) { c.userHooks = h }

// internalHooks wraps the caller-supplied hooks with the client's own
// bookkeeping (account-data caching for ignoreUser/unignoreUser and
// getAccountData) so user hooks never have to duplicate it.
func (c *Client) internalHooks() syncengine.Hooks {
	h := c.userHooks
	userOnAccountData := h.OnAccountData
	h.OnAccountData = func(u syncengine.EventUpdate) {
		if u.Event != nil {
			c.mu.Lock()
			c.accountData[u.Event.Type] = u.Event.Content
			c.mu.Unlock()
		}
		if userOnAccountData != nil {
			userOnAccountData(u)
		}
	}
	return h
}

// AccountData returns the last-seen account-data content for eventType,
// or nil if none has been observed this session.
func (c *Client) AccountData(eventType string) json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountData[eventType]
}

// ClientID implements syncengine.Session.
func (c *Client) ClientID() string { c.mu.RLock(); defer c.mu.RUnlock(); return c.clientID }

// UserID implements syncengine.Session.
func (c *Client) UserID() string { c.mu.RLock(); defer c.mu.RUnlock(); return c.userID }

// PrevBatch implements syncengine.Session.
func (c *Client) PrevBatch() string { c.mu.RLock(); defer c.mu.RUnlock(); return c.prevBatch }

// SetPrevBatch implements syncengine.Session.
func (c *Client) SetPrevBatch(ctx context.Context, token string) error {
	c.mu.Lock()
	c.prevBatch = token
	clientID := c.clientID
	c.mu.Unlock()
	if c.db != nil {
		return c.db.StorePrevBatch(ctx, clientID, "", token)
	}
	return nil
}

// IsLoggedIn implements syncengine.Session.
func (c *Client) IsLoggedIn() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.loggedIn }

// SyncFilter implements syncengine.Session.
func (c *Client) SyncFilter() string { return defaultSyncFilter }

// ClearOnUnknownToken implements syncengine.Session: M_UNKNOWN_TOKEN during
// sync is an implicit logout (§7).
func (c *Client) ClearOnUnknownToken(ctx context.Context) {
	_ = c.clear(ctx)
}

// Connect hydrates the sync engine and keys tracker from the current
// session fields and starts the background loop if configured (§4.G
// connect()).
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	c.loggedIn = true
	c.tracker = keys.New(c.api, c.db, c.userID, c.deviceID, c.enc.FingerprintKey(), c.now)
	c.engine = syncengine.New(c.api, c.db, c, c, c.tracker, c.enc, c.internalHooks(), syncengine.Config{
		BackgroundSync:   c.cfg.BackgroundSync,
		SyncErrorTimeout: c.cfg.SyncErrorTimeout,
	}, nil)
	c.mu.Unlock()

	if c.userHooks.OnLoginStateChanged != nil {
		c.userHooks.OnLoginStateChanged(true)
	}
	if c.cfg.BackgroundSync {
		go c.engine.RunBackground(ctx)
	}
}

// OneShotSync drives exactly one sync pass (used by callers that manage
// their own polling loop instead of BackgroundSync).
func (c *Client) OneShotSync(ctx context.Context) error {
	c.mu.RLock()
	e := c.engine
	c.mu.RUnlock()
	if e == nil {
		return sdkerr.New(sdkerr.State, "client: not connected")
	}
	return e.OneShotSync(ctx)
}

// clear implements §4.G clear(): drops session state in memory and in the
// database, disposes Encryption, and emits LoggedOut — regardless of
// whether the caller got here via explicit logout or an unknown-token
// sync failure.
func (c *Client) clear(ctx context.Context) error {
	c.mu.Lock()
	clientID := c.clientID
	e := c.engine
	c.loggedIn = false
	c.accessToken = ""
	c.prevBatch = ""
	c.rooms = make(map[string]*roomEntry)
	c.sortedOrder = nil
	c.firstSynced = false
	c.engine = nil
	c.mu.Unlock()

	if e != nil {
		e.Dispose()
	}
	var dbErr error
	if c.db != nil {
		dbErr = c.db.Clear(ctx, clientID)
	}
	encErr := c.enc.Dispose(ctx)

	if c.userHooks.OnLoginStateChanged != nil {
		c.userHooks.OnLoginStateChanged(false)
	}
	if dbErr != nil {
		return dbErr
	}
	return encErr
}

// Dispose tears down the client: stops the sync loop, disposes Encryption,
// but (unlike clear()) does not wipe the database — a disposed client can
// be reconstructed from persisted session state (§5 Cancellation).
func (c *Client) Dispose(ctx context.Context) {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()
	if e != nil {
		e.Dispose()
	}
	_ = c.enc.Dispose(ctx)
}

func (c *Client) fireError(err error) {
	if c.userHooks.OnError != nil {
		c.userHooks.OnError(err)
	}
}
