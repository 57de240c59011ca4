package syncengine

import (
	"context"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/mxapi"
)

// handleSync implements the per-pass dispatch order from §4.E: to-device
// events first (so a decrypted room key is available before any
// m.room.encrypted event in this same pass needs it), then joined/invited/
// left room deltas, then presence, account data, device-list hints, and
// one-time-key counts, finishing with the raw onSync emission.
func (e *Engine) handleSync(ctx context.Context, resp *mxapi.SyncResponse) {
	for _, raw := range resp.ToDevice.Events {
		e.handleToDeviceEvent(ctx, raw)
	}

	e.handleJoinedRooms(ctx, resp.Rooms.Join)
	e.handleInvitedRooms(ctx, resp.Rooms.Invite)
	e.handleLeftRooms(ctx, resp.Rooms.Leave)

	for _, raw := range resp.Presence.Events {
		ev := event.NewFromJSON(raw, "", event.StatusTimeline, event.SortOrder{}, e.nowMs())
		u := EventUpdate{Kind: KindState, Event: ev, Raw: raw}
		e.hooks.firePresence(u)
	}

	for _, raw := range resp.AccountData.Events {
		ev := event.NewFromJSON(raw, "", event.StatusTimeline, event.SortOrder{}, e.nowMs())
		if e.db != nil {
			_ = e.db.StoreAccountData(ctx, e.sess.ClientID(), ev.Type, ev.Content)
		}
		e.hooks.fireAccountData(EventUpdate{Kind: KindAccountData, Event: ev, Raw: raw})
	}

	if e.tracker != nil {
		for _, userID := range resp.DeviceLists.Changed {
			e.tracker.MarkOutdated(userID)
		}
		for _, userID := range resp.DeviceLists.Left {
			e.tracker.Drop(userID)
		}
	}
	if e.enc.Enabled() && len(resp.DeviceOneTimeKeysCount) > 0 {
		_ = e.enc.HandleDeviceOneTimeKeysCount(ctx, resp.DeviceOneTimeKeysCount)
	}

	e.hooks.fireSync(resp)
}

func (e *Engine) nowMs() int64 { return e.now().UnixMilli() }

// updateUserDeviceKeys performs one device-key refresh pass for whatever
// the tracker currently holds outdated, after the room/account-data state
// from this sync pass has already been committed (§4.F refresh algorithm
// is driven once per completed sync pass, not mid-transaction).
func (e *Engine) updateUserDeviceKeys(ctx context.Context) {
	if err := e.tracker.Refresh(ctx); err != nil {
		log.WithFields(map[string]interface{}{"err": err}).Warn("syncengine: device key refresh failed")
		return
	}
	e.metrics.keyRefreshes.Inc()
}
