package syncengine

import (
	"encoding/json"
	"testing"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeReadReceipts_RemovesStaleEntryAndUpserts(t *testing.T) {
	r := room.New("!r:example.org")

	first := event.NewFromJSON(json.RawMessage(`{
		"type": "m.receipt",
		"content": {"$event1": {"m.read": {"@alice:example.org": {"ts": 100}}}}
	}`), "!r:example.org", event.StatusTimeline, event.SortOrder{}, 0)
	merged := mergeReadReceipts(r, first)
	require.NotNil(t, merged)
	r.SetRoomAccountData(merged)

	var decoded struct{ Receipts []Receipt }
	require.NoError(t, json.Unmarshal(merged.Content, &decoded))
	require.Len(t, decoded.Receipts, 1)
	assert.Equal(t, "$event1", decoded.Receipts[0].EventID)

	second := event.NewFromJSON(json.RawMessage(`{
		"type": "m.receipt",
		"content": {"$event2": {"m.read": {"@alice:example.org": {"ts": 200}}}}
	}`), "!r:example.org", event.StatusTimeline, event.SortOrder{}, 0)
	merged2 := mergeReadReceipts(r, second)
	require.NotNil(t, merged2)

	require.NoError(t, json.Unmarshal(merged2.Content, &decoded))
	require.Len(t, decoded.Receipts, 1, "alice's stale receipt under $event1 must be removed, not accumulated")
	assert.Equal(t, "$event2", decoded.Receipts[0].EventID)
	assert.Equal(t, int64(200), decoded.Receipts[0].TS)
}

func TestMergeReadReceipts_IgnoresNonReadReceiptTypes(t *testing.T) {
	r := room.New("!r:example.org")
	ev := event.NewFromJSON(json.RawMessage(`{
		"type": "m.receipt",
		"content": {"$event1": {"m.read.private": {"@alice:example.org": {"ts": 100}}}}
	}`), "!r:example.org", event.StatusTimeline, event.SortOrder{}, 0)
	assert.Nil(t, mergeReadReceipts(r, ev))
}
