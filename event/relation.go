package event

import "github.com/matrixgo/sdk/internal/jsonutil"

const (
	RelReplace    = "m.replace"
	RelAnnotation = "m.annotation"
	RelInReplyTo  = "m.in_reply_to"
)

// RelationshipType returns content."m.relates_to".rel_type if present;
// otherwise "m.in_reply_to" if content."m.relates_to"."m.in_reply_to" is a
// mapping; otherwise "" (§4.B).
func (e *Event) RelationshipType() string {
	if rt, ok := jsonutil.NonEmptyString(e.Content, "m\\.relates_to.rel_type"); ok {
		return rt
	}
	if jsonutil.IsObject(e.Content, "m\\.relates_to.m\\.in_reply_to") {
		return RelInReplyTo
	}
	return ""
}

// RelationshipEventID returns the event_id the relation targets, per the
// same fallback order as RelationshipType (§4.B).
func (e *Event) RelationshipEventID() (string, bool) {
	if id, ok := jsonutil.NonEmptyString(e.Content, "m\\.relates_to.event_id"); ok {
		return id, true
	}
	if id, ok := jsonutil.NonEmptyString(e.Content, "m\\.relates_to.m\\.in_reply_to.event_id"); ok {
		return id, true
	}
	return "", false
}
