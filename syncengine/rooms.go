package syncengine

import (
	"context"
	"encoding/json"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/room"
	"github.com/matrixgo/sdk/store"
)

func jsonMarshalSummary(s room.Summary) (json.RawMessage, error) {
	return json.Marshal(s)
}

// transitionFor derives the MembershipTransition a room delta represents,
// given whether the room was already known and its previous membership
// (§4.E step 1 of _handle_rooms).
func transitionFor(known bool, prev room.Membership, next room.Membership) MembershipTransition {
	switch {
	case !known && next == room.MembershipJoin:
		return TransitionNewJoin
	case !known && next == room.MembershipInvite:
		return TransitionNewInvite
	case !known && next == room.MembershipLeave:
		return TransitionNewLeave
	case prev != room.MembershipLeave && next == room.MembershipLeave:
		return TransitionNowLeft
	case next == room.MembershipJoin:
		return TransitionStillJoined
	case next == room.MembershipInvite:
		return TransitionStillInvited
	default:
		return TransitionNone
	}
}

func toRoomSummary(s mxapi.RoomSummary) room.Summary {
	out := room.Summary{Heroes: s.Heroes}
	if s.JoinedMemberCount != nil {
		out.JoinedMemberCount = *s.JoinedMemberCount
	}
	if s.InvitedMemberCount != nil {
		out.InvitedMemberCount = *s.InvitedMemberCount
	}
	return out
}

func (e *Engine) handleJoinedRooms(ctx context.Context, joins map[string]mxapi.JoinedRoom) {
	for roomID, jr := range joins {
		_, known := e.rooms.Room(roomID)
		r := e.rooms.EnsureRoom(roomID)
		prev := r.Membership

		if jr.Timeline.Limited {
			r.ResetSortOrder()
		}

		for _, raw := range jr.State.Events {
			e.handleEvent(ctx, r, roomID, raw, KindState)
		}
		for _, raw := range jr.Timeline.Events {
			e.handleEvent(ctx, r, roomID, raw, KindTimeline)
		}
		e.handleEphemeral(ctx, r, roomID, jr.Ephemeral.Events)
		for _, raw := range jr.AccountData.Events {
			ev := event.NewFromJSON(raw, roomID, event.StatusTimeline, event.SortOrder{}, e.nowMs())
			r.SetRoomAccountData(ev)
			e.hooks.fireAccountData(EventUpdate{RoomID: roomID, Kind: KindAccountData, Event: ev, Raw: raw})
		}

		r.SetMembership(room.MembershipJoin)
		r.UpdateCounters(jr.UnreadNotifications.HighlightCount, jr.UnreadNotifications.NotificationCount)
		r.UpdateSummary(toRoomSummary(jr.Summary))
		if jr.Timeline.PrevBatch != "" {
			r.SetPrevBatch(jr.Timeline.PrevBatch)
		}

		e.persistAndFireRoomUpdate(ctx, r, transitionFor(known, prev, room.MembershipJoin), jr.Timeline.Limited)
	}
}

func (e *Engine) handleInvitedRooms(ctx context.Context, invites map[string]mxapi.InvitedRoom) {
	for roomID, ir := range invites {
		_, known := e.rooms.Room(roomID)
		r := e.rooms.EnsureRoom(roomID)
		prev := r.Membership

		for _, raw := range ir.InviteState.Events {
			e.handleEvent(ctx, r, roomID, raw, KindInviteState)
		}
		r.SetMembership(room.MembershipInvite)

		transition := transitionFor(known, prev, room.MembershipInvite)
		if transition == TransitionNewInvite {
			e.rooms.PromoteRoomToFront(roomID)
		}
		e.persistAndFireRoomUpdate(ctx, r, transition, false)
	}
}

func (e *Engine) handleLeftRooms(ctx context.Context, leaves map[string]mxapi.LeftRoom) {
	for roomID, lr := range leaves {
		_, known := e.rooms.Room(roomID)
		r := e.rooms.EnsureRoom(roomID)
		prev := r.Membership

		// Left rooms dispatch timeline, then account_data, then state —
		// unlike joined rooms, which dispatch state first — since a leave's
		// state block mostly just confirms the membership change that ended
		// the room already.
		for _, raw := range lr.Timeline.Events {
			e.handleEvent(ctx, r, roomID, raw, KindTimeline)
		}
		for _, raw := range lr.AccountData.Events {
			ev := event.NewFromJSON(raw, roomID, event.StatusTimeline, event.SortOrder{}, e.nowMs())
			r.SetRoomAccountData(ev)
			e.hooks.fireAccountData(EventUpdate{RoomID: roomID, Kind: KindAccountData, Event: ev, Raw: raw})
		}
		for _, raw := range lr.State.Events {
			e.handleEvent(ctx, r, roomID, raw, KindState)
		}

		r.SetMembership(room.MembershipLeave)

		e.persistAndFireRoomUpdate(ctx, r, transitionFor(known, prev, room.MembershipLeave), false)
		e.rooms.RemoveRoom(roomID)
	}
}

func (e *Engine) persistAndFireRoomUpdate(ctx context.Context, r *room.Room, transition MembershipTransition, limited bool) {
	u := RoomUpdate{
		RoomID:            r.ID,
		Transition:        transition,
		Membership:        r.Membership,
		PrevBatch:         r.PrevBatch,
		HighlightCount:    r.HighlightCount,
		NotificationCount: r.NotificationCount,
		Summary:           r.Summary,
		LimitedTimeline:   limited,
	}
	if e.db != nil {
		summaryJSON, _ := jsonMarshalSummary(u.Summary)
		_ = e.db.StoreRoomUpdate(ctx, store.RoomUpdateRow{
			ClientID:          e.sess.ClientID(),
			RoomID:            u.RoomID,
			Membership:        string(u.Membership),
			PrevBatch:         u.PrevBatch,
			HighlightCount:    u.HighlightCount,
			NotificationCount: u.NotificationCount,
			SummaryJSON:       summaryJSON,
		})
	}
	e.hooks.fireRoomUpdate(u)
}
