package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", 10<<20)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestClientRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.InsertClient(ctx, store.ClientRow{
		ClientID: "c1", ClientName: "alice-phone", Homeserver: "https://matrix.org",
		Token: "tok", UserID: "@alice:matrix.org", DeviceID: "DEV1",
	})
	require.NoError(t, err)

	got, err := db.GetClient(ctx, "alice-phone")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.ClientID)
	assert.Equal(t, "@alice:matrix.org", got.UserID)

	none, err := db.GetClient(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGetUserCachedAfterStoreEventUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stateKey := "@bob:matrix.org"
	row := store.EventUpdateRow{
		ClientID: "c1",
		RoomID:   "!room:matrix.org",
		Kind:     "state",
		Event: event.DatabaseRow{
			EventID:        "$1",
			RoomID:         "!room:matrix.org",
			Type:           "m.room.member",
			SenderID:       stateKey,
			OriginServerTS: 1000,
			Content:        json.RawMessage(`{"membership":"join","displayname":"Bob"}`),
			Unsigned:       json.RawMessage(`{}`),
			StateKey:       &stateKey,
			Status:         event.StatusRoomState,
		},
	}
	require.NoError(t, db.StoreEventUpdate(ctx, row))

	got, err := db.GetUser(ctx, "c1", stateKey, "!room:matrix.org")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bob", gjsonDisplayName(t, got.Content))

	// Second read should hit the ristretto cache path and return the same data.
	got2, err := db.GetUser(ctx, "c1", stateKey, "!room:matrix.org")
	require.NoError(t, err)
	require.NotNil(t, got2)
	assert.Equal(t, got.EventID, got2.EventID)

	missing, err := db.GetUser(ctx, "c1", "@nobody:matrix.org", "!room:matrix.org")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRoomAndAccountDataRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.StoreRoomUpdate(ctx, store.RoomUpdateRow{
		ClientID: "c1", RoomID: "!r1:matrix.org", Membership: "join", SummaryJSON: json.RawMessage(`{}`),
	}))
	require.NoError(t, db.StoreAccountData(ctx, "c1", "m.push_rules", json.RawMessage(`{"global":{}}`)))

	rooms, err := db.GetRoomList(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "!r1:matrix.org", rooms[0].RoomID)

	data, err := db.GetAccountData(ctx, "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"global":{}}`, string(data["m.push_rules"]))

	require.NoError(t, db.Clear(ctx, "c1"))
	rooms, err = db.GetRoomList(ctx, "c1", false)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func gjsonDisplayName(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	name, _ := m["displayname"].(string)
	return name
}
