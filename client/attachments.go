package client

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/sdkerr"
)

// dbFileCache adapts store.Database's file table into event.FileCache,
// fronted by an in-process go-cache layer so repeat thumbnail/attachment
// fetches within a session skip the round trip to the store entirely —
// the database remains the source of truth the 30-day prune sweeps (§9
// Resource policy), the in-memory layer just saves a read.
type dbFileCache struct {
	c  *Client
	l1 *gocache.Cache
}

func newDBFileCache(c *Client) *dbFileCache {
	return &dbFileCache{c: c, l1: gocache.New(10*time.Minute, 10*time.Minute)}
}

func (f *dbFileCache) Get(uri string) ([]byte, bool) {
	if v, ok := f.l1.Get(uri); ok {
		return v.([]byte), true
	}
	if f.c.db == nil {
		return nil, false
	}
	data, ok, err := f.c.db.GetFile(context.Background(), uri)
	if err != nil || !ok {
		return nil, false
	}
	f.l1.Set(uri, data, gocache.DefaultExpiration)
	return data, true
}

func (f *dbFileCache) Put(uri string, data []byte) error {
	f.l1.Set(uri, data, gocache.DefaultExpiration)
	if f.c.db == nil {
		return nil
	}
	return f.c.db.StoreFile(context.Background(), uri, data, f.c.now())
}

func (f *dbFileCache) MaxFileSize() int64 {
	if f.c.db == nil {
		return 0
	}
	return f.c.db.MaxFileSize()
}

// GetAttachment resolves, downloads, and (if encrypted) decrypts the
// attachment carried by roomID/eventID, going through the session's
// file cache (§4.B getAttachment).
func (c *Client) GetAttachment(ctx context.Context, roomID, eventID string, req event.AttachmentRequest) ([]byte, error) {
	tl := c.Timeline(roomID)
	if tl == nil {
		return nil, sdkerr.New(sdkerr.Validation, "client: unknown room "+roomID)
	}
	ev := tl.GetEventByID(eventID)
	if ev == nil {
		return nil, sdkerr.New(sdkerr.Validation, "client: unknown event "+eventID)
	}
	if req.Homeserver == "" {
		req.Homeserver = c.cfg.Homeserver
	}
	return ev.GetAttachment(ctx, req, attachmentDownloader{c}, c.fileCache, c.enc)
}

// attachmentDownloader adapts MatrixApi.Download to event.Downloader.
type attachmentDownloader struct{ c *Client }

func (d attachmentDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	return d.c.api.Download(ctx, url)
}

// UploadContent wraps MatrixApi.Upload, returning the resulting mxc://
// content URI (§4.G uploadContent, supplementing the distilled spec's
// download-only coverage).
func (c *Client) UploadContent(ctx context.Context, bytes []byte, filename, contentType string) (string, error) {
	resp, err := c.api.Upload(ctx, bytes, filename, contentType)
	if err != nil {
		return "", err
	}
	return resp.ContentURI, nil
}

// RedactEvent wraps MatrixApi.RedactEvent, transaction-ID-stamped like
// SendToDevice (§4.G redactEvent).
func (c *Client) RedactEvent(ctx context.Context, roomID, eventID, reason string) (string, error) {
	return c.api.RedactEvent(ctx, roomID, eventID, reason, c.txn.Next())
}

// SetPusher enables or disables a push rule, round-tripping through
// MatrixApi.EnablePushRule (§4.G setPusher).
func (c *Client) SetPusher(ctx context.Context, scope, kind, ruleID string, enabled bool) error {
	return c.api.EnablePushRule(ctx, scope, kind, ruleID, enabled)
}

// PushRulesAccountData reads the cached m.push_rules account data, if any has
// been observed this session.
func (c *Client) PushRulesAccountData() []byte {
	return c.AccountData("m.push_rules")
}
