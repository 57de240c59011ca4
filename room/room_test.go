package room

import (
	"encoding/json"
	"testing"

	"github.com/matrixgo/sdk/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateEvent(t *testing.T, eventID, evType, stateKey string, content string, major int64) *event.Event {
	t.Helper()
	raw := json.RawMessage(`{"event_id":"` + eventID + `","type":"` + evType + `","state_key":"` + stateKey + `","content":` + content + `}`)
	return event.NewFromJSON(raw, "!r", event.StatusRoomState, event.SortOrder{Major: major}, 0)
}

func TestSetStateMonotoneProjection(t *testing.T) {
	r := New("!r")
	older := stateEvent(t, "$1", "m.room.topic", "", `{"topic":"old"}`, 1)
	newer := stateEvent(t, "$2", "m.room.topic", "", `{"topic":"new"}`, 2)
	stale := stateEvent(t, "$3", "m.room.topic", "", `{"topic":"stale"}`, 1)

	r.SetState(older)
	r.SetState(newer)
	r.SetState(stale)

	got := r.GetState("m.room.topic", "")
	require.NotNil(t, got)
	topic, _ := got.GetContentString("topic")
	assert.Equal(t, "new", topic)
}

func TestApplyRedaction(t *testing.T) {
	r := New("!r")
	pl := stateEvent(t, "$pl", "m.room.power_levels", "", `{"ban":50,"custom":"x"}`, 1)
	r.SetState(pl)

	redactorJSON := json.RawMessage(`{"type":"m.room.redaction","event_id":"$rx"}`)
	applied := r.ApplyRedaction("$pl", redactorJSON)
	assert.True(t, applied)

	got := r.GetState("m.room.power_levels", "")
	assert.JSONEq(t, `{"ban":50}`, string(got.Content))
}

func TestResetSortOrderIsDisjointFromPriorValues(t *testing.T) {
	r := New("!r")
	first := r.NextNewSortOrder()
	second := r.NextNewSortOrder()
	require.True(t, first.Less(second))

	r.ResetSortOrder()
	third := r.NextNewSortOrder()
	assert.True(t, second.Less(third))
}
