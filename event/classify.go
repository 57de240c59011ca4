package event

import "github.com/matrixgo/sdk/internal/jsonutil"

const (
	TypeMessage = "m.room.message"
	TypeSticker = "m.sticker"

	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
	MsgTypeNone   = "m.none"
)

// textLikeMsgTypes is used by the room-list preview renderer to decide
// whether to prefix the sender's display name (§4.B Localized summary).
var textLikeMsgTypes = map[string]bool{
	MsgTypeText:   true,
	MsgTypeNotice: true,
	MsgTypeEmote:  true,
	MsgTypeNone:   true,
}

// MessageType returns "m.sticker" for stickers; else content.msgtype when
// it is a string; else "m.text" (§4.B).
func (e *Event) MessageType() string {
	if e.Type == TypeSticker {
		return TypeSticker
	}
	if mt, ok := jsonutil.NonEmptyString(e.Content, "msgtype"); ok {
		return mt
	}
	return MsgTypeText
}

// IsTextLikeMessage reports whether MessageType() is one of the types the
// room-list preview treats as plain text (for sender-name prefixing).
func (e *Event) IsTextLikeMessage() bool {
	return textLikeMsgTypes[e.MessageType()]
}

// GetContentString returns the string value of content[key], used by
// callers (room membership lookups, relation helpers) that need a single
// typed accessor at the edge of the otherwise-dynamic content blob (§9).
func (e *Event) GetContentString(key string) (string, bool) {
	return jsonutil.NonEmptyString(e.Content, key)
}

// Body returns "Redacted" if redacted; else content.body if non-empty;
// else content.formatted_body if non-empty; else the event type (§4.B).
func (e *Event) Body() string {
	if e.IsRedacted() {
		return "Redacted"
	}
	if b, ok := jsonutil.NonEmptyString(e.Content, "body"); ok {
		return b
	}
	if b, ok := jsonutil.NonEmptyString(e.Content, "formatted_body"); ok {
		return b
	}
	return e.Type
}
