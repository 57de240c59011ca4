package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromJSON_DefaultsOnMalformedInput(t *testing.T) {
	ev := NewFromJSON(json.RawMessage(`not json`), "!room:example.org", StatusTimeline, SortOrder{}, 1234)
	assert.Equal(t, "!room:example.org", ev.RoomID)
	assert.JSONEq(t, `{}`, string(ev.Content))
	assert.JSONEq(t, `{}`, string(ev.Unsigned))
	assert.Equal(t, int64(1234), ev.OriginServerTS)
}

func TestNewFromJSON_StampsReceiptTimeWhenTimestampOmitted(t *testing.T) {
	ev := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"body":"hi"}}`), "!r", StatusTimeline, SortOrder{}, 999)
	assert.Equal(t, int64(999), ev.OriginServerTS)
}

func TestPrevContentHoisting(t *testing.T) {
	// top-level prev_content absent, unsigned.prev_content is an object: hoist.
	raw := json.RawMessage(`{"type":"m.room.member","content":{"membership":"join"},"unsigned":{"prev_content":{"membership":"invite"}}}`)
	ev := NewFromJSON(raw, "!r", StatusState, SortOrder{}, 0)
	require.NotNil(t, ev.PrevContent)
	assert.JSONEq(t, `{"membership":"invite"}`, string(ev.PrevContent))
}

func TestPrevContentAbsentWhenBothMissing(t *testing.T) {
	raw := json.RawMessage(`{"type":"m.room.member","content":{"membership":"join"}}`)
	ev := NewFromJSON(raw, "!r", StatusState, SortOrder{}, 0)
	assert.Nil(t, ev.PrevContent)
}

// StatusState is used only by this test file for readability; it maps onto
// the RoomState status.
const StatusState = StatusRoomState

func TestRedactionOfPowerLevels_S1(t *testing.T) {
	pl := NewFromJSON(json.RawMessage(`{
		"event_id":"$pl","type":"m.room.power_levels","state_key":"",
		"content":{"ban":50,"kick":50,"users":{"@a":100},"custom":"keep-me"}
	}`), "!r", StatusRoomState, SortOrder{Major: 1}, 0)

	redactor := json.RawMessage(`{"type":"m.room.redaction","event_id":"$redact1","sender":"@mod:example.org","content":{"redacts":"$pl"}}`)
	err := pl.SetRedactionEvent(redactor)
	require.NoError(t, err)

	assert.JSONEq(t, `{"ban":50,"kick":50,"users":{"@a":100}}`, string(pl.Content))
	assert.Nil(t, pl.PrevContent)
	assert.Equal(t, "m.room.redaction", gjsonType(t, pl.RedactedBecause()))
}

func gjsonType(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var v struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &v))
	return v.Type
}

func TestRedactionOfUnlistedType(t *testing.T) {
	ev := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"body":"hi"}}`), "!r", StatusTimeline, SortOrder{}, 0)
	require.NoError(t, ev.SetRedactionEvent(json.RawMessage(`{"type":"m.room.redaction"}`)))
	assert.JSONEq(t, `{}`, string(ev.Content))
}

func TestRelationshipType(t *testing.T) {
	replace := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"m.relates_to":{"rel_type":"m.replace","event_id":"$a"}}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.Equal(t, RelReplace, replace.RelationshipType())
	id, ok := replace.RelationshipEventID()
	assert.True(t, ok)
	assert.Equal(t, "$a", id)

	reply := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"m.relates_to":{"m.in_reply_to":{"event_id":"$b"}}}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.Equal(t, RelInReplyTo, reply.RelationshipType())

	none := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.Equal(t, "", none.RelationshipType())
}

func TestMessageTypeAndBody(t *testing.T) {
	ev := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"msgtype":"m.image","body":"photo.png"}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.Equal(t, "m.image", ev.MessageType())
	assert.Equal(t, "photo.png", ev.Body())

	sticker := NewFromJSON(json.RawMessage(`{"type":"m.sticker","content":{}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.Equal(t, "m.sticker", sticker.MessageType())

	fallback := NewFromJSON(json.RawMessage(`{"type":"m.room.topic","content":{}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.Equal(t, "m.room.topic", fallback.Body())
}

// fakeAggregationSource implements AggregationSource for edit-resolution tests.
type fakeAggregationSource struct {
	byTarget map[string][]*Event
}

func (f *fakeAggregationSource) AggregatedEvents(eventID, relType string) []*Event {
	return f.byTarget[eventID+"|"+relType]
}

func TestEditResolution_S3(t *testing.T) {
	e0 := NewFromJSON(json.RawMessage(`{"event_id":"$E0","sender":"@alice:example.org","type":"m.room.message","content":{"body":"hello"}}`), "!r", StatusTimeline, SortOrder{Major: 1}, 0)
	e1 := NewFromJSON(json.RawMessage(`{
		"event_id":"$E1","sender":"@alice:example.org","type":"m.room.message",
		"content":{"m.new_content":{"body":"world"},"m.relates_to":{"rel_type":"m.replace","event_id":"$E0"}}
	}`), "!r", StatusTimeline, SortOrder{Major: 2}, 0)

	tl := &fakeAggregationSource{byTarget: map[string][]*Event{
		"$E0|m.replace": {e1},
	}}

	displayed := e0.GetDisplayEvent(tl)
	assert.Equal(t, "world", displayed.Body())
	// original untouched
	assert.Equal(t, "hello", e0.Body())
}

func TestEditResolution_IgnoresEditsFromOtherSenders(t *testing.T) {
	e0 := NewFromJSON(json.RawMessage(`{"event_id":"$E0","sender":"@alice:example.org","type":"m.room.message","content":{"body":"hello"}}`), "!r", StatusTimeline, SortOrder{}, 0)
	e1 := NewFromJSON(json.RawMessage(`{
		"event_id":"$E1","sender":"@mallory:example.org","type":"m.room.message",
		"content":{"m.new_content":{"body":"hacked"},"m.relates_to":{"rel_type":"m.replace","event_id":"$E0"}}
	}`), "!r", StatusTimeline, SortOrder{}, 0)
	tl := &fakeAggregationSource{byTarget: map[string][]*Event{"$E0|m.replace": {e1}}}
	displayed := e0.GetDisplayEvent(tl)
	assert.Equal(t, "hello", displayed.Body())
}

func TestIsOnlyEmotes(t *testing.T) {
	emoji := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"body":"\U0001F600\U0001F601"}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.True(t, emoji.IsOnlyEmotes(false))
	assert.Equal(t, 2, emoji.NumberEmotes(false))

	mixed := NewFromJSON(json.RawMessage(`{"type":"m.room.message","content":{"body":"hi \U0001F600"}}`), "!r", StatusTimeline, SortOrder{}, 0)
	assert.False(t, mixed.IsOnlyEmotes(false))
}

func TestStripReplyFallback(t *testing.T) {
	body := "> <@alice:example.org> original message\n\nmy reply"
	assert.Equal(t, "my reply", StripReplyFallback(body))
}
