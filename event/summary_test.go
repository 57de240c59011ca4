package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubLocalizations renders each phrase as a recognizable token so tests
// can assert on the arguments passed through, not on wording.
type stubLocalizations struct{ MatrixLocalizations }

func (stubLocalizations) SentAMessage(senderName, body string) string {
	return senderName + " said " + body
}

func TestMessageSummary_PrefixesYouForLocalSender(t *testing.T) {
	raw := json.RawMessage(`{"type":"m.room.message","sender":"@me:example.org","content":{"msgtype":"m.text","body":"hi"}}`)
	ev := NewFromJSON(raw, "!r", StatusTimeline, SortOrder{}, 0)

	got := ev.Summary(stubLocalizations{}, "Me", "", "@me:example.org", true)
	assert.Equal(t, "you: Me said hi", got)
}

func TestMessageSummary_PrefixesSenderNameForOthers(t *testing.T) {
	raw := json.RawMessage(`{"type":"m.room.message","sender":"@bob:example.org","content":{"msgtype":"m.text","body":"hi"}}`)
	ev := NewFromJSON(raw, "!r", StatusTimeline, SortOrder{}, 0)

	got := ev.Summary(stubLocalizations{}, "Bob", "", "@me:example.org", true)
	assert.Equal(t, "Bob: Bob said hi", got)
}
