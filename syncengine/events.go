package syncengine

import (
	"context"
	"encoding/json"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/internal/jsonutil"
	"github.com/matrixgo/sdk/room"
	"github.com/matrixgo/sdk/store"
)

// callSignalKinds maps the four dedicated call-signalling event types to
// their CallSignalKind (§4.E).
var callSignalKinds = map[string]CallSignalKind{
	"m.call.invite":     CallInvite,
	"m.call.hangup":     CallHangup,
	"m.call.answer":     CallAnswer,
	"m.call.candidates": CallCandidates,
}

// handleEvent implements §4.E's per-event handler: sort-order assignment,
// the S2 anti-downgrade gate for m.room.encryption, redaction fan-out,
// best-effort decryption, lazy member hydration, persistence, and
// broadcast.
func (e *Engine) handleEvent(ctx context.Context, r *room.Room, roomID string, raw json.RawMessage, kind EventUpdateKind) {
	order := r.NextNewSortOrder()
	if kind == KindHistory {
		order = r.NextOldSortOrder()
	}

	status := event.StatusTimeline
	if kind == KindState || kind == KindInviteState {
		status = event.StatusRoomState
	}
	ev := event.NewFromJSON(raw, roomID, status, order, e.nowMs())

	if ev.Type == "m.room.encryption" {
		if existing := r.GetState("m.room.encryption", ""); existing != nil {
			log.WithFields(map[string]interface{}{"room": roomID}).
				Warn("syncengine: refusing to overwrite existing m.room.encryption state")
			return
		}
	}

	if ev.Type == "m.room.redaction" {
		target := redactionTarget(raw)
		if target != "" {
			r.ApplyRedaction(target, raw)
			if tl := e.rooms.Timeline(roomID); tl != nil {
				tl.ApplyRedaction(target, raw)
			}
		}
	}

	if ev.IsState() {
		r.SetState(ev)
	}
	if kind == KindTimeline || kind == KindHistory {
		if tl := e.rooms.Timeline(roomID); tl != nil {
			tl.Add(ev)
		}
	}

	if ev.Type == "m.room.encrypted" && e.enc.Enabled() {
		if err := e.enc.HandleEventUpdate(ctx, roomID, raw); err != nil {
			log.WithFields(map[string]interface{}{"room": roomID, "err": err}).
				Warn("syncengine: room event decryption failed")
		}
	}

	if ev.Type == event.TypeMessage {
		e.hydrateSenderIfUnknown(ctx, r, ev.SenderID)
	}

	if e.db != nil {
		_ = e.db.StoreEventUpdate(ctx, store.EventUpdateRow{
			ClientID: e.sess.ClientID(),
			RoomID:   roomID,
			Kind:     string(kind),
			Event:    ev.ToRow(),
		})
	}

	u := EventUpdate{RoomID: roomID, Kind: kind, Event: ev, Raw: raw}
	e.hooks.fireEvent(u)
	if signal, ok := callSignalKinds[ev.Type]; ok {
		e.hooks.fireCallSignal(signal, u)
	}
}

// redactionTarget reads the target event_id off a raw m.room.redaction
// event, preferring the top-level field (pre-room-v11) and falling back to
// content.redacts (room v11+).
func redactionTarget(raw json.RawMessage) string {
	if s, ok := jsonutil.NonEmptyString(raw, "redacts"); ok {
		return s
	}
	return jsonutil.String(raw, "content.redacts")
}

// hydrateSenderIfUnknown is the lazy member-state hydration §4.E mentions
// for message senders: if the room has never seen an m.room.member state
// event for senderID, pull one from the local database (a prior session
// may already have seen this member elsewhere) rather than the network.
func (e *Engine) hydrateSenderIfUnknown(ctx context.Context, r *room.Room, senderID string) {
	if senderID == "" || r.GetState("m.room.member", senderID) != nil || e.db == nil {
		return
	}
	row, err := e.db.GetUser(ctx, e.sess.ClientID(), senderID, r.ID)
	if err != nil || row == nil {
		return
	}
	r.SetState(event.NewFromRow(*row))
}
