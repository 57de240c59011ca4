package client

import (
	"context"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/room"
)

// ArchivedRoom is a synthetic leave-membership room materialized by
// Archive without touching live client state.
type ArchivedRoom struct {
	Room     *room.Room
	Timeline []*event.Event
}

// Archive performs a one-shot sync with the documented archive filter and
// timeout=0, materializing synthetic leave-membership rooms from the
// response without mutating the live room map (§4.G archive()).
func (c *Client) Archive(ctx context.Context) ([]ArchivedRoom, error) {
	resp, err := c.api.Sync(ctx, archiveSyncFilter, c.PrevBatch(), 0)
	if err != nil {
		return nil, err
	}

	var out []ArchivedRoom
	for roomID, lr := range resp.Rooms.Leave {
		r := room.New(roomID)
		r.SetMembership(room.MembershipLeave)
		for _, raw := range lr.State.Events {
			ev := event.NewFromJSON(raw, roomID, event.StatusRoomState, event.SortOrder{}, c.now().UnixMilli())
			if ev.IsState() {
				r.SetState(ev)
			}
		}
		var timeline []*event.Event
		order := event.SortOrder{}
		for i, raw := range lr.Timeline.Events {
			order.Major = int64(i)
			ev := event.NewFromJSON(raw, roomID, event.StatusTimeline, order, c.now().UnixMilli())
			timeline = append(timeline, ev)
			if ev.IsState() {
				r.SetState(ev)
			}
		}
		out = append(out, ArchivedRoom{Room: r, Timeline: timeline})
	}
	return out, nil
}
