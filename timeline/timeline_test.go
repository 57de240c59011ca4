package timeline

import (
	"encoding/json"
	"testing"

	"github.com/matrixgo/sdk/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(t *testing.T, id, sender, contentJSON string, major int64) *event.Event {
	t.Helper()
	raw := json.RawMessage(`{"event_id":"` + id + `","sender":"` + sender + `","type":"m.room.message","content":` + contentJSON + `}`)
	return event.NewFromJSON(raw, "!r", event.StatusTimeline, event.SortOrder{Major: major}, 0)
}

func TestAddAndOrdering(t *testing.T) {
	tl := New("!r")
	e2 := msg(t, "$2", "@a:x", `{"body":"b"}`, 2)
	e1 := msg(t, "$1", "@a:x", `{"body":"a"}`, 1)
	tl.Add(e2)
	tl.Add(e1)

	got := tl.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "$1", got[0].EventID)
	assert.Equal(t, "$2", got[1].EventID)
}

func TestAggregationIndexingAndDisplayEvent(t *testing.T) {
	tl := New("!r")
	e0 := msg(t, "$E0", "@a:x", `{"body":"hello"}`, 1)
	e1 := msg(t, "$E1", "@a:x", `{"m.new_content":{"body":"world"},"m.relates_to":{"rel_type":"m.replace","event_id":"$E0"}}`, 2)
	tl.Add(e0)
	tl.Add(e1)

	display := e0.GetDisplayEvent(tl)
	assert.Equal(t, "world", display.Body())
}

func TestGetEventByID(t *testing.T) {
	tl := New("!r")
	e0 := msg(t, "$E0", "@a:x", `{"body":"hi"}`, 1)
	tl.Add(e0)
	assert.Same(t, e0, tl.GetEventByID("$E0"))
	assert.Nil(t, tl.GetEventByID("$missing"))
}

func TestApplyRedaction(t *testing.T) {
	tl := New("!r")
	e0 := msg(t, "$E0", "@a:x", `{"body":"hi"}`, 1)
	tl.Add(e0)
	ok := tl.ApplyRedaction("$E0", json.RawMessage(`{"type":"m.room.redaction"}`))
	assert.True(t, ok)
	assert.Equal(t, "Redacted", e0.Body())
}
