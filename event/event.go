// Package event implements the typed event envelope (§3, §4.B): immutable-
// by-convention records constructed from sync JSON, database rows, or an
// already-parsed API event, plus redaction, relation inspection, message
// classification, and localized-summary rendering.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/matrixgo/sdk/internal/jsonutil"
)

// Status mirrors the sending-status lifecycle a client-authored event moves
// through before (and after) the homeserver accepts it.
type Status int

const (
	StatusError     Status = -1
	StatusSending   Status = 0
	StatusSent      Status = 1
	StatusTimeline  Status = 2
	StatusRoomState Status = 3
)

// Event is the SDK's typed envelope over one Matrix event. Per §9's
// cyclic-reference note it holds a RoomID, not a *Room pointer: callers
// that need the owning Room look it up through the Client's room map.
type Event struct {
	EventID        string
	RoomID         string
	Type           string
	SenderID       string
	OriginServerTS int64 // millisecond epoch
	Content        json.RawMessage
	Unsigned       json.RawMessage
	// PrevContent is nil when absent from both the top level and
	// unsigned.prev_content (§4.B / §9).
	PrevContent json.RawMessage
	StateKey    *string
	Status      Status
	SortOrder   SortOrder
}

// wireEvent is the subset of Matrix event JSON the constructors read.
type wireEvent struct {
	EventID        string          `json:"event_id"`
	RoomID         string          `json:"room_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	OriginServerTS *int64          `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	Unsigned       json.RawMessage `json:"unsigned"`
	PrevContent    json.RawMessage `json:"prev_content"`
	StateKey       *string         `json:"state_key"`
}

// NewFromJSON constructs an Event from a raw sync/timeline JSON payload.
// On malformed input the event is still constructed: fields default to
// empty mappings, never an error (§4.B). now supplies the receipt
// timestamp used when the server omits origin_server_ts.
func NewFromJSON(raw json.RawMessage, roomID string, status Status, order SortOrder, nowMs int64) *Event {
	var w wireEvent
	// Best-effort: malformed JSON still yields a constructed Event.
	_ = json.Unmarshal(raw, &w)

	ev := &Event{
		EventID:   w.EventID,
		RoomID:    firstNonEmpty(w.RoomID, roomID),
		Type:      w.Type,
		SenderID:  w.Sender,
		Content:   jsonutil.Normalize(w.Content),
		Unsigned:  jsonutil.Normalize(w.Unsigned),
		StateKey:  w.StateKey,
		Status:    status,
		SortOrder: order,
	}
	if w.OriginServerTS != nil {
		ev.OriginServerTS = *w.OriginServerTS
	} else {
		ev.OriginServerTS = nowMs
	}
	ev.PrevContent = hoistPrevContent(w.PrevContent, ev.Unsigned)
	return ev
}

// hoistPrevContent implements §4.B / §9: when top-level prev_content is
// absent but unsigned.prev_content is a mapping, it is hoisted up. Unlike
// the source, this never swallows a malformed value — a present but
// non-object prev_content (top-level or hoisted) is simply dropped to nil,
// which is observable by callers, not hidden behind a try/catch.
func hoistPrevContent(topLevel, unsigned json.RawMessage) json.RawMessage {
	if len(topLevel) > 0 {
		if jsonutil.IsObject(topLevel, "@this") {
			return topLevel
		}
		return nil
	}
	if jsonutil.IsObject(unsigned, "prev_content") {
		raw := jsonutil.Get(unsigned, "prev_content").Raw
		return json.RawMessage(raw)
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// DatabaseRow is the shape event rows take in the Database capability; it
// mirrors Event's fields directly so that NewFromRow / ToRow round-trip
// losslessly (Testable property 1, §8).
type DatabaseRow struct {
	EventID        string
	RoomID         string
	Type           string
	SenderID       string
	OriginServerTS int64
	Content        json.RawMessage
	Unsigned       json.RawMessage
	PrevContent    json.RawMessage
	StateKey       *string
	Status         Status
	SortOrderMajor int64
	SortOrderMinor int64
}

// NewFromRow reconstructs an Event previously persisted via ToRow.
func NewFromRow(row DatabaseRow) *Event {
	return &Event{
		EventID:        row.EventID,
		RoomID:         row.RoomID,
		Type:           row.Type,
		SenderID:       row.SenderID,
		OriginServerTS: row.OriginServerTS,
		Content:        jsonutil.Normalize(row.Content),
		Unsigned:       jsonutil.Normalize(row.Unsigned),
		PrevContent:    row.PrevContent,
		StateKey:       row.StateKey,
		Status:         row.Status,
		SortOrder:      SortOrder{Major: row.SortOrderMajor, Minor: row.SortOrderMinor},
	}
}

// ToRow projects the Event into its persistable row shape.
func (e *Event) ToRow() DatabaseRow {
	return DatabaseRow{
		EventID:        e.EventID,
		RoomID:         e.RoomID,
		Type:           e.Type,
		SenderID:       e.SenderID,
		OriginServerTS: e.OriginServerTS,
		Content:        e.Content,
		Unsigned:       e.Unsigned,
		PrevContent:    e.PrevContent,
		StateKey:       e.StateKey,
		Status:         e.Status,
		SortOrderMajor: e.SortOrder.Major,
		SortOrderMinor: e.SortOrder.Minor,
	}
}

// IsState reports whether this is a state event (non-nil state_key, §3).
func (e *Event) IsState() bool { return e.StateKey != nil }

func (e *Event) String() string {
	return fmt.Sprintf("Event{id=%s type=%s room=%s}", e.EventID, e.Type, e.RoomID)
}
