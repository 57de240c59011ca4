package syncengine

import (
	"encoding/json"
	"testing"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionFor(t *testing.T) {
	assert.Equal(t, TransitionNewJoin, transitionFor(false, "", room.MembershipJoin))
	assert.Equal(t, TransitionNewInvite, transitionFor(false, "", room.MembershipInvite))
	assert.Equal(t, TransitionStillJoined, transitionFor(true, room.MembershipJoin, room.MembershipJoin))
	assert.Equal(t, TransitionNowLeft, transitionFor(true, room.MembershipJoin, room.MembershipLeave))
}

func TestRedactionTarget_TopLevel(t *testing.T) {
	raw := json.RawMessage(`{"type":"m.room.redaction","redacts":"$target1","content":{}}`)
	assert.Equal(t, "$target1", redactionTarget(raw))
}

func TestRedactionTarget_ContentFallback(t *testing.T) {
	raw := json.RawMessage(`{"type":"m.room.redaction","content":{"redacts":"$target2"}}`)
	assert.Equal(t, "$target2", redactionTarget(raw))
}

func TestFlattenReceipts(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "m.receipt",
		"content": {
			"$event1": {
				"m.read": {
					"@alice:example.org": {"ts": 1000},
					"@bob:example.org": {"ts": 1500, "thread_id": "main"}
				}
			}
		}
	}`)
	ev := event.NewFromJSON(raw, "!room:example.org", event.StatusTimeline, event.SortOrder{}, 0)
	flat := flattenReceipts(ev)

	var decoded struct {
		Receipts []Receipt `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal(flat.Content, &decoded))
	require.Len(t, decoded.Receipts, 2)

	byUser := map[string]Receipt{}
	for _, r := range decoded.Receipts {
		byUser[r.UserID] = r
	}
	assert.Equal(t, "$event1", byUser["@alice:example.org"].EventID)
	assert.Equal(t, "m.read", byUser["@alice:example.org"].ReceiptType)
	assert.EqualValues(t, 1000, byUser["@alice:example.org"].TS)
	assert.Equal(t, "main", byUser["@bob:example.org"].ThreadID)
}
