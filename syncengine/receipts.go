package syncengine

import (
	"context"
	"encoding/json"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/room"
)

// Receipt is one flattened read-receipt entry. The wire shape nests
// user IDs three levels deep (event_id -> receipt_type -> user_id -> {ts});
// callers overwhelmingly want "where is this user's receipt", so
// handleEphemeral re-keys it flat by user ID before broadcasting (§9 open
// question: receipt map shape).
type Receipt struct {
	UserID      string `json:"user_id"`
	EventID     string `json:"event_id"`
	ReceiptType string `json:"receipt_type"`
	ThreadID    string `json:"thread_id,omitempty"`
	TS          int64  `json:"ts,omitempty"`
}

// handleEphemeral processes a room's ephemeral events (m.receipt,
// m.typing). Unlike timeline/state events, ephemeral data carries no
// sort order and is never persisted to the Database (§4.E, §6).
func (e *Engine) handleEphemeral(ctx context.Context, r *room.Room, roomID string, events []json.RawMessage) {
	for _, raw := range events {
		ev := event.NewFromJSON(raw, roomID, event.StatusTimeline, event.SortOrder{}, e.nowMs())
		if ev.Type == "m.receipt" {
			flat := flattenReceipts(ev)
			r.SetEphemeral(flat)
			e.hooks.fireEvent(EventUpdate{RoomID: roomID, Kind: KindEphemeral, Event: flat, Raw: raw})
			if merged := mergeReadReceipts(r, ev); merged != nil {
				r.SetRoomAccountData(merged)
				e.hooks.fireAccountData(EventUpdate{RoomID: roomID, Kind: KindAccountData, Event: merged, Raw: merged.Content})
			}
			continue
		}
		r.SetEphemeral(ev)
		e.hooks.fireEvent(EventUpdate{RoomID: roomID, Kind: KindEphemeral, Event: ev, Raw: raw})
	}
}

// flattenReceipts rewrites an m.receipt event's content from
// {event_id: {receipt_type: {user_id: {ts}}}} into
// {receipts: [{user_id, event_id, receipt_type, thread_id, ts}, ...]} and
// returns a new Event carrying that flattened content, leaving the
// original event's other fields untouched.
func flattenReceipts(ev *event.Event) *event.Event {
	var wire map[string]map[string]map[string]struct {
		TS       int64  `json:"ts"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal(ev.Content, &wire); err != nil {
		return ev
	}
	var flat []Receipt
	for eventID, byType := range wire {
		for receiptType, byUser := range byType {
			for userID, info := range byUser {
				flat = append(flat, Receipt{
					UserID: userID, EventID: eventID, ReceiptType: receiptType,
					ThreadID: info.ThreadID, TS: info.TS,
				})
			}
		}
	}
	content, err := json.Marshal(struct {
		Receipts []Receipt `json:"receipts"`
	}{flat})
	if err != nil {
		return ev
	}
	out := *ev
	out.Content = content
	return &out
}

// mergeReadReceipts folds the m.read receipts carried by ev's delta into
// the room's persistent m.receipt room-account-data map: for each
// event-id/m.read/user triple, the user's previous entry (wherever it was)
// is dropped and replaced with the new one, keyed by user (spec.md's
// "Ephemeral receipts"). Returns nil if ev carries no m.read receipts, so
// callers can skip the account-data dispatch entirely.
func mergeReadReceipts(r *room.Room, ev *event.Event) *event.Event {
	var wire map[string]map[string]map[string]struct {
		TS       int64  `json:"ts"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal(ev.Content, &wire); err != nil {
		return nil
	}

	byUser := map[string]Receipt{}
	if prev := r.RoomAccountData("m.receipt"); prev != nil {
		var decoded struct {
			Receipts []Receipt `json:"receipts"`
		}
		if json.Unmarshal(prev.Content, &decoded) == nil {
			for _, rcpt := range decoded.Receipts {
				byUser[rcpt.UserID] = rcpt
			}
		}
	}

	changed := false
	for eventID, types := range wire {
		readers, ok := types["m.read"]
		if !ok {
			continue
		}
		for userID, info := range readers {
			byUser[userID] = Receipt{UserID: userID, EventID: eventID, ReceiptType: "m.read", ThreadID: info.ThreadID, TS: info.TS}
			changed = true
		}
	}
	if !changed {
		return nil
	}

	flat := make([]Receipt, 0, len(byUser))
	for _, rcpt := range byUser {
		flat = append(flat, rcpt)
	}
	content, err := json.Marshal(struct {
		Receipts []Receipt `json:"receipts"`
	}{flat})
	if err != nil {
		return nil
	}
	out := *ev
	out.Type = "m.receipt"
	out.Content = content
	return &out
}
