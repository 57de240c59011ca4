package event

import (
	"encoding/json"

	"github.com/matrixgo/sdk/internal/jsonutil"
)

// redactionWhitelist is the per-type set of content keys a redaction
// retains (§4.B table). Types not listed here retain nothing.
var redactionWhitelist = map[string][]string{
	"m.room.member":             {"membership"},
	"m.room.create":             {"creator"},
	"m.room.join_rules":         {"join_rule"},
	"m.room.power_levels":       {"ban", "events", "events_default", "kick", "redact", "state_default", "users", "users_default"},
	"m.room.aliases":            {"aliases"},
	"m.room.history_visibility": {"history_visibility"},
}

// SetRedactionEvent applies redactor's effect to e in place: stores
// redactor's JSON into unsigned.redacted_because, clears prev_content, and
// trims content to e.Type's whitelist (empty for unlisted types).
func (e *Event) SetRedactionEvent(redactorJSON json.RawMessage) error {
	updated, err := jsonutil.SetRaw(e.Unsigned, "redacted_because", redactorJSON)
	if err != nil {
		return err
	}
	e.Unsigned = updated
	e.PrevContent = nil
	e.Content = jsonutil.PickKeys(e.Content, redactionWhitelist[e.Type])
	return nil
}

// IsRedacted reports whether unsigned.redacted_because is set.
func (e *Event) IsRedacted() bool {
	return jsonutil.Has(e.Unsigned, "redacted_because")
}

// RedactedBecause returns the redactor's raw JSON, or nil if not redacted.
func (e *Event) RedactedBecause() json.RawMessage {
	r := jsonutil.Get(e.Unsigned, "redacted_because")
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
