// Package sqlite is a store.Database adapter backed by modernc.org/sqlite,
// laid out the way dendrite's storage/sqlite3 packages are: a schema
// constant executed once at open and $N-placeholder SQL. Queries are issued
// ad hoc per call, not as prepared statements, and the whole adapter lives
// in this one file. Unlike dendrite's per-subsystem storage packages
// this is a single package because the SDK has one logical store, not one
// per server component.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	_ "modernc.org/sqlite"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sdk_clients (
	client_id TEXT PRIMARY KEY,
	client_name TEXT NOT NULL,
	homeserver TEXT NOT NULL,
	token TEXT NOT NULL,
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	device_name TEXT NOT NULL DEFAULT '',
	prev_batch TEXT NOT NULL DEFAULT '',
	olm_account BLOB
);

CREATE TABLE IF NOT EXISTS sdk_rooms (
	client_id TEXT NOT NULL,
	room_id TEXT NOT NULL,
	membership TEXT NOT NULL,
	prev_batch TEXT NOT NULL DEFAULT '',
	highlight_count INTEGER NOT NULL DEFAULT 0,
	notification_count INTEGER NOT NULL DEFAULT 0,
	summary_json TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (client_id, room_id)
);

CREATE TABLE IF NOT EXISTS sdk_events (
	client_id TEXT NOT NULL,
	room_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	type TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	origin_server_ts INTEGER NOT NULL,
	content TEXT NOT NULL,
	unsigned TEXT NOT NULL DEFAULT '{}',
	prev_content TEXT,
	state_key TEXT,
	status INTEGER NOT NULL,
	sort_major INTEGER NOT NULL,
	sort_minor INTEGER NOT NULL,
	PRIMARY KEY (client_id, room_id, event_id)
);
CREATE INDEX IF NOT EXISTS sdk_events_member_idx ON sdk_events(client_id, room_id, type, state_key);

CREATE TABLE IF NOT EXISTS sdk_account_data (
	client_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	content TEXT NOT NULL,
	PRIMARY KEY (client_id, event_type)
);

CREATE TABLE IF NOT EXISTS sdk_files (
	uri TEXT PRIMARY KEY,
	bytes BLOB NOT NULL,
	stored_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sdk_device_keys (
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	ed25519_key TEXT NOT NULL,
	curve25519_key TEXT NOT NULL,
	direct_verified INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	valid_signatures TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (user_id, device_id)
);

CREATE TABLE IF NOT EXISTS sdk_cross_signing_keys (
	user_id TEXT NOT NULL,
	usage TEXT NOT NULL,
	public_key TEXT NOT NULL,
	direct_verified INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	valid_signatures TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (user_id, usage)
);

CREATE TABLE IF NOT EXISTS sdk_device_key_tracking (
	user_id TEXT PRIMARY KEY,
	outdated INTEGER NOT NULL DEFAULT 1
);
`

// txKey is the context key a transaction's *sql.Tx is stashed under so
// nested Database calls made from inside Transaction's fn participate in
// the same transaction instead of opening a second connection.
type txKey struct{}

// DB is the sqlite-backed store.Database adapter. Event rows for GetUser
// are read through a ristretto cache (admission-counted, cost = len(row
// JSON)) since member-event lookups happen on every lazily-loaded sender
// during sync and rarely change.
type DB struct {
	conn        *sql.DB
	cache       *ristretto.Cache
	maxFileSize int64
}

// Open creates (or reuses) the sqlite database at path and applies the
// schema. path may be ":memory:" for tests.
func Open(path string, maxFileSize int64) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, matches dendrite's sqlite3 convention
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: new cache: %w", err)
	}
	return &DB{conn: conn, cache: cache, maxFileSize: maxFileSize}, nil
}

func (d *DB) querier(ctx context.Context) interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
} {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.conn
}

func (d *DB) MaxFileSize() int64 { return d.maxFileSize }

func (d *DB) Close() error { return d.conn.Close() }

// Transaction runs fn with a *sql.Tx stashed in ctx so every Database
// method called from within fn reuses it (§6).
func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (d *DB) GetClient(ctx context.Context, name string) (*store.ClientRow, error) {
	row := d.querier(ctx).QueryRowContext(ctx, `SELECT client_id, client_name, homeserver, token, user_id, device_id, device_name, prev_batch, olm_account FROM sdk_clients WHERE client_name = $1`, name)
	var r store.ClientRow
	if err := row.Scan(&r.ClientID, &r.ClientName, &r.Homeserver, &r.Token, &r.UserID, &r.DeviceID, &r.DeviceName, &r.PrevBatch, &r.OlmAccount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (d *DB) InsertClient(ctx context.Context, row store.ClientRow) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_clients (client_id, client_name, homeserver, token, user_id, device_id, device_name, prev_batch, olm_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ClientID, row.ClientName, row.Homeserver, row.Token, row.UserID, row.DeviceID, row.DeviceName, row.PrevBatch, row.OlmAccount)
	return err
}

func (d *DB) UpdateClient(ctx context.Context, row store.ClientRow) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		UPDATE sdk_clients SET token = $1, user_id = $2, device_id = $3, device_name = $4, prev_batch = $5, olm_account = $6
		WHERE client_id = $7`,
		row.Token, row.UserID, row.DeviceID, row.DeviceName, row.PrevBatch, row.OlmAccount, row.ClientID)
	return err
}

func (d *DB) StorePrevBatch(ctx context.Context, clientID, roomID, prevBatch string) error {
	if roomID == "" {
		_, err := d.querier(ctx).ExecContext(ctx, `UPDATE sdk_clients SET prev_batch = $1 WHERE client_id = $2`, prevBatch, clientID)
		return err
	}
	_, err := d.querier(ctx).ExecContext(ctx, `UPDATE sdk_rooms SET prev_batch = $1 WHERE client_id = $2 AND room_id = $3`, prevBatch, clientID, roomID)
	return err
}

func (d *DB) StoreAccountData(ctx context.Context, clientID, eventType string, content json.RawMessage) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_account_data (client_id, event_type, content) VALUES ($1, $2, $3)
		ON CONFLICT (client_id, event_type) DO UPDATE SET content = $3`,
		clientID, eventType, string(content))
	return err
}

func (d *DB) StoreRoomUpdate(ctx context.Context, row store.RoomUpdateRow) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_rooms (client_id, room_id, membership, prev_batch, highlight_count, notification_count, summary_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id, room_id) DO UPDATE SET
			membership = $3, prev_batch = $4, highlight_count = $5, notification_count = $6, summary_json = $7`,
		row.ClientID, row.RoomID, row.Membership, row.PrevBatch, row.HighlightCount, row.NotificationCount, string(row.SummaryJSON))
	return err
}

func (d *DB) StoreEventUpdate(ctx context.Context, row store.EventUpdateRow) error {
	e := row.Event
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_events (client_id, room_id, event_id, kind, type, sender_id, origin_server_ts, content, unsigned, prev_content, state_key, status, sort_major, sort_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (client_id, room_id, event_id) DO UPDATE SET
			kind = $4, type = $5, sender_id = $6, origin_server_ts = $7, content = $8, unsigned = $9,
			prev_content = $10, state_key = $11, status = $12, sort_major = $13, sort_minor = $14`,
		row.ClientID, row.RoomID, e.EventID, row.Kind, e.Type, e.SenderID, e.OriginServerTS,
		string(e.Content), string(e.Unsigned), nullableJSON(e.PrevContent), nullableStateKey(e.StateKey),
		int(e.Status), e.SortOrderMajor, e.SortOrderMinor)
	if err != nil {
		return err
	}
	if e.StateKey != nil && e.Type == "m.room.member" {
		d.cache.Del(userCacheKey(row.ClientID, row.RoomID, *e.StateKey))
	}
	return nil
}

func (d *DB) RemoveEvent(ctx context.Context, clientID, roomID, eventID string) error {
	_, err := d.querier(ctx).ExecContext(ctx, `DELETE FROM sdk_events WHERE client_id = $1 AND room_id = $2 AND event_id = $3`, clientID, roomID, eventID)
	return err
}

func (d *DB) StoreFile(ctx context.Context, uri string, bytes []byte, ts time.Time) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_files (uri, bytes, stored_at) VALUES ($1, $2, $3)
		ON CONFLICT (uri) DO UPDATE SET bytes = $2, stored_at = $3`, uri, bytes, ts.Unix())
	return err
}

func (d *DB) GetFile(ctx context.Context, uri string) ([]byte, bool, error) {
	var b []byte
	err := d.querier(ctx).QueryRowContext(ctx, `SELECT bytes FROM sdk_files WHERE uri = $1`, uri).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (d *DB) DeleteOldFiles(ctx context.Context, before time.Time) error {
	_, err := d.querier(ctx).ExecContext(ctx, `DELETE FROM sdk_files WHERE stored_at < $1`, before.Unix())
	return err
}

func (d *DB) StoreUserDeviceKey(ctx context.Context, row store.DeviceKeyRow) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_device_keys (user_id, device_id, ed25519_key, curve25519_key, direct_verified, blocked, valid_signatures)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			ed25519_key = $3, curve25519_key = $4, direct_verified = $5, blocked = $6, valid_signatures = $7`,
		row.UserID, row.DeviceID, row.Ed25519Key, row.Curve25519Key, row.DirectVerified, row.Blocked, string(row.ValidSignatures))
	return err
}

func (d *DB) RemoveUserDeviceKey(ctx context.Context, userID, deviceID string) error {
	_, err := d.querier(ctx).ExecContext(ctx, `DELETE FROM sdk_device_keys WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	return err
}

func (d *DB) StoreUserDeviceKeysInfo(ctx context.Context, userID string, outdated bool) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_device_key_tracking (user_id, outdated) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET outdated = $2`, userID, outdated)
	return err
}

func (d *DB) StoreUserCrossSigningKey(ctx context.Context, row store.CrossSigningKeyRow) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO sdk_cross_signing_keys (user_id, usage, public_key, direct_verified, blocked, valid_signatures)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, usage) DO UPDATE SET
			public_key = $3, direct_verified = $4, blocked = $5, valid_signatures = $6`,
		row.UserID, row.Usage, row.PublicKey, row.DirectVerified, row.Blocked, string(row.ValidSignatures))
	return err
}

func (d *DB) GetUserDeviceKeys(ctx context.Context, clientID string) (map[string][]store.DeviceKeyRow, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `SELECT user_id, device_id, ed25519_key, curve25519_key, direct_verified, blocked, valid_signatures FROM sdk_device_keys`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]store.DeviceKeyRow)
	for rows.Next() {
		var r store.DeviceKeyRow
		var sigs string
		if err := rows.Scan(&r.UserID, &r.DeviceID, &r.Ed25519Key, &r.Curve25519Key, &r.DirectVerified, &r.Blocked, &sigs); err != nil {
			return nil, err
		}
		r.ValidSignatures = json.RawMessage(sigs)
		out[r.UserID] = append(out[r.UserID], r)
	}
	return out, rows.Err()
}

func (d *DB) GetRoomList(ctx context.Context, clientID string, onlyLeft bool) ([]store.RoomUpdateRow, error) {
	q := `SELECT client_id, room_id, membership, prev_batch, highlight_count, notification_count, summary_json FROM sdk_rooms WHERE client_id = $1`
	if onlyLeft {
		q += ` AND membership = 'leave'`
	}
	rows, err := d.querier(ctx).QueryContext(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.RoomUpdateRow
	for rows.Next() {
		var r store.RoomUpdateRow
		var summary string
		if err := rows.Scan(&r.ClientID, &r.RoomID, &r.Membership, &r.PrevBatch, &r.HighlightCount, &r.NotificationCount, &summary); err != nil {
			return nil, err
		}
		r.SummaryJSON = json.RawMessage(summary)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) GetAccountData(ctx context.Context, clientID string) (map[string]json.RawMessage, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `SELECT event_type, content FROM sdk_account_data WHERE client_id = $1`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var eventType, content string
		if err := rows.Scan(&eventType, &content); err != nil {
			return nil, err
		}
		out[eventType] = json.RawMessage(content)
	}
	return out, rows.Err()
}

// GetUser returns the m.room.member state row for userID in roomID, read
// through the ristretto cache.
func (d *DB) GetUser(ctx context.Context, clientID, userID, roomID string) (*event.DatabaseRow, error) {
	key := userCacheKey(clientID, roomID, userID)
	if v, ok := d.cache.Get(key); ok {
		row := v.(event.DatabaseRow)
		return &row, nil
	}

	r := d.querier(ctx).QueryRowContext(ctx, `
		SELECT event_id, room_id, type, sender_id, origin_server_ts, content, unsigned, prev_content, state_key, status, sort_major, sort_minor
		FROM sdk_events WHERE client_id = $1 AND room_id = $2 AND type = 'm.room.member' AND state_key = $3`,
		clientID, roomID, userID)

	var row event.DatabaseRow
	var content, unsigned string
	var prevContent, stateKey sql.NullString
	if err := r.Scan(&row.EventID, &row.RoomID, &row.Type, &row.SenderID, &row.OriginServerTS, &content, &unsigned, &prevContent, &stateKey, &row.Status, &row.SortOrderMajor, &row.SortOrderMinor); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	row.Content = json.RawMessage(content)
	row.Unsigned = json.RawMessage(unsigned)
	if prevContent.Valid {
		row.PrevContent = json.RawMessage(prevContent.String)
	}
	if stateKey.Valid {
		sk := stateKey.String
		row.StateKey = &sk
	}

	d.cache.Set(key, row, int64(len(content)+len(unsigned)))
	return &row, nil
}

func (d *DB) Clear(ctx context.Context, clientID string) error {
	q := d.querier(ctx)
	for _, stmt := range []string{
		`DELETE FROM sdk_rooms WHERE client_id = $1`,
		`DELETE FROM sdk_events WHERE client_id = $1`,
		`DELETE FROM sdk_account_data WHERE client_id = $1`,
		`DELETE FROM sdk_clients WHERE client_id = $1`,
	} {
		if _, err := q.ExecContext(ctx, stmt, clientID); err != nil {
			return err
		}
	}
	d.cache.Clear()
	return nil
}

func (d *DB) ClearCache(ctx context.Context, clientID string) error {
	d.cache.Clear()
	return nil
}

func userCacheKey(clientID, roomID, userID string) string {
	return clientID + "|" + roomID + "|" + userID
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableStateKey(sk *string) interface{} {
	if sk == nil {
		return nil
	}
	return *sk
}

var _ store.Database = (*DB)(nil)
