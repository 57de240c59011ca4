package client

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixgo/sdk/crypto"
	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/mxapi"
)

type fakeAPI struct {
	mxapi.MatrixApi
	accountData map[string]json.RawMessage
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{accountData: make(map[string]json.RawMessage)}
}

func (f *fakeAPI) SetAccountData(ctx context.Context, userID, eventType string, content json.RawMessage) error {
	f.accountData[eventType] = content
	return nil
}

func newTestClient() (*Client, *fakeAPI) {
	api := newFakeAPI()
	c := New(api, nil, crypto.Disabled{}, Config{ClientName: "test"})
	c.userID = "@me:example.org"
	return c, api
}

// TestIgnoreUnignoreRoundTrip covers Testable property 6: ignoring then
// unignoring a user restores the account-data content to what it was
// before IgnoreUser was called.
func TestIgnoreUnignoreRoundTrip(t *testing.T) {
	c, api := newTestClient()
	ctx := context.Background()

	before := c.AccountData(ignoredUserListType)

	require.NoError(t, c.IgnoreUser(ctx, "@bob:example.org"))
	assert.True(t, c.IsIgnored("@bob:example.org"))
	assert.JSONEq(t, `{"ignored_users":{"@bob:example.org":{}}}`, string(api.accountData[ignoredUserListType]))

	require.NoError(t, c.UnignoreUser(ctx, "@bob:example.org"))
	assert.False(t, c.IsIgnored("@bob:example.org"))

	after := c.AccountData(ignoredUserListType)
	if before == nil {
		assert.JSONEq(t, `{}`, string(after))
	} else {
		assert.JSONEq(t, string(before), string(after))
	}
}

func TestIgnoreUser_RejectsInvalidUserID(t *testing.T) {
	c, _ := newTestClient()
	err := c.IgnoreUser(context.Background(), "not-a-user-id")
	assert.Error(t, err)
}

// TestSortRooms_FavouritesBeatTimeCreated covers Testable property 7:
// favourites always sort first regardless of creation time; among
// non-favourites, newer rooms sort first.
func TestSortRooms_FavouritesBeatTimeCreated(t *testing.T) {
	c, _ := newTestClient()

	mkRoom := func(roomID string, createdTS int64, favourite bool) {
		r := c.EnsureRoom(roomID)
		r.SetState(event.NewFromJSON(mustJSON(t, map[string]interface{}{
			"type":             "m.room.create",
			"state_key":        "",
			"origin_server_ts": createdTS,
			"content":          map[string]interface{}{"creator": "@me:example.org"},
		}), roomID, event.StatusRoomState, event.SortOrder{}, createdTS))
		if favourite {
			tagEvent := event.NewFromJSON(mustJSON(t, map[string]interface{}{
				"type":    "m.tag",
				"content": map[string]interface{}{"tags": map[string]interface{}{"m.favourite": map[string]interface{}{}}},
			}), roomID, event.StatusTimeline, event.SortOrder{}, 0)
			r.SetRoomAccountData(tagEvent)
		}
	}

	mkRoom("!old:example.org", 1000, false)
	mkRoom("!new:example.org", 5000, false)
	mkRoom("!fav:example.org", 500, true)

	c.SortRooms()

	var ids []string
	for _, r := range c.SortedRooms() {
		ids = append(ids, r.ID)
	}
	require.Equal(t, []string{"!fav:example.org", "!new:example.org", "!old:example.org"}, ids)
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
